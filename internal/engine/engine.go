// Copyright 2016 Qubit Digital Ltd.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package engine implements C8: the sole owner of all mutable state,
// serializing every watcher, timer, and client-command event through
// one logical handler per spec.md §5.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/qubitproducts/logwatchd/internal/config"
	"github.com/qubitproducts/logwatchd/internal/metrics"
	"github.com/qubitproducts/logwatchd/internal/persist"
	"github.com/qubitproducts/logwatchd/internal/plugin"
	"github.com/qubitproducts/logwatchd/internal/sched"
	"github.com/qubitproducts/logwatchd/internal/server"
	"github.com/qubitproducts/logwatchd/internal/watch"
	"github.com/qubitproducts/logwatchd/internal/zone"
)

// Engine binds the zone store, watchers, expander, scheduler, and
// query server. Zone state is mutated only by handlers that run on
// Run's select loop (Bootstrap runs before it), per spec.md §5's
// single-writer discipline. Besides zone.Store's own lock, mu guards
// the two watcher maps. ActiveZones, ZoneStats and HUP are the entry
// points safe to call from other goroutines.
type Engine struct {
	cfg       *config.Config
	plug      plugin.Plugin
	store     *zone.Store
	expander  *watch.Expander
	scheduler *sched.Scheduler
	srv       *server.Server
	archiver  *persist.Archiver

	parseErrorLevel plugin.Level

	mu             sync.Mutex // guards the two maps below only
	watchers       map[string]*watch.Watcher
	watchersByPath map[string]*watch.Watcher

	watcherEvents chan watch.Event
	hup           chan struct{}
	statsRequests chan statsRequest
}

// statsRequest asks the event loop for a point-in-time copy of one
// zone's public counters and window ring, per statsRequest.zone.
type statsRequest struct {
	zone  string
	reply chan statsResponse
}

type statsResponse struct {
	public  plugin.Public
	windows plugin.Windows
	ok      bool
}

// New constructs an Engine. archiver may be nil to skip archival.
func New(cfg *config.Config, plug plugin.Plugin, expander *watch.Expander, scheduler *sched.Scheduler, srv *server.Server, archiver *persist.Archiver) *Engine {
	level := plugin.Level(cfg.ParseError)
	if cfg.ParseError == "" {
		level = plug.ParseErrorDefault()
	}

	return &Engine{
		cfg:             cfg,
		plug:            plug,
		store:           zone.New(cfg.WindowsNum),
		expander:        expander,
		scheduler:       scheduler,
		srv:             srv,
		archiver:        archiver,
		parseErrorLevel: level,
		watchers:        map[string]*watch.Watcher{},
		watchersByPath:  map[string]*watch.Watcher{},
		watcherEvents:   make(chan watch.Event, 256),
		hup:             make(chan struct{}, 1),
		statsRequests:   make(chan statsRequest),
	}
}

// Bootstrap loads persisted state and initializes every configured
// zone, per spec.md §4.7 and the InitZone contract in
// internal/plugin. It must run before Run.
func (e *Engine) Bootstrap(snapshot map[string]zone.Snapshot) {
	e.store.Load(snapshot)
	for _, z := range e.cfg.ZonesInOrder() {
		st := e.store.Ensure(z)
		e.plug.InitZone(z, st.Public, st.Private, st.Current())
	}
	metrics.ActiveZones.Set(float64(len(e.cfg.ZonesInOrder())))
}

// ActiveZones lists every active zone name, for read-only consumers
// outside the event loop such as internal/adminhttp's Grafana
// datasource. This only touches zone.Store's own registry lock, never
// a zone's Public/Windows maps, so it's safe to call concurrently with
// the event loop without going through statsRequests.
func (e *Engine) ActiveZones() []string {
	return e.store.Active()
}

// ZoneStats returns a point-in-time deep copy of one zone's public
// counters and window ring. Unlike ActiveZones, this reaches into the
// mutable per-zone State the event loop concurrently mutates in
// handleWatcherEvent/handleSchedulerEvent, so it round-trips through
// statsRequests instead of reading e.store directly: zone.Store's own
// mutex only guards its registry maps, not the State it hands out by
// pointer, and admin HTTP handlers run on their own goroutines outside
// the single-writer event loop.
func (e *Engine) ZoneStats(ctx context.Context, zoneName string) (plugin.Public, plugin.Windows, bool) {
	reply := make(chan statsResponse, 1)
	select {
	case e.statsRequests <- statsRequest{zone: zoneName, reply: reply}:
	case <-ctx.Done():
		return nil, nil, false
	}
	select {
	case resp := <-reply:
		return resp.public, resp.windows, resp.ok
	case <-ctx.Done():
		return nil, nil, false
	}
}

func (e *Engine) handleStatsRequest(req statsRequest) {
	st, ok := e.store.Get(req.zone)
	if !ok {
		req.reply <- statsResponse{ok: false}
		return
	}
	req.reply <- statsResponse{public: copyPublic(st.Public), windows: copyWindows(st.Windows), ok: true}
}

func copyPublic(p plugin.Public) plugin.Public {
	out := make(plugin.Public, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func copyWindows(ws plugin.Windows) plugin.Windows {
	out := make(plugin.Windows, len(ws))
	for i, w := range ws {
		cw := make(plugin.Window, len(w))
		for k, v := range w {
			cw[k] = v
		}
		out[i] = cw
	}
	return out
}

// HUP requests an immediate re-expansion, for SIGHUP per spec.md §4.5.
func (e *Engine) HUP() {
	select {
	case e.hup <- struct{}{}:
	default:
	}
}

// Run drives the engine's event loop until ctx is cancelled. On
// cancellation it performs a final save and drops every watcher, per
// spec.md §5's shutdown rule; there is no graceful drain.
func (e *Engine) Run(ctx context.Context) error {
	// Bind the query socket synchronously so a bind failure (e.g. the
	// address is already in use) is fatal at startup, per spec.md §7,
	// rather than surfacing as a headless daemon with no control
	// channel and a zero exit code.
	if err := e.srv.Listen(); err != nil {
		return errors.Wrap(err, "query server")
	}

	e.expand(ctx)

	go e.scheduler.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.srv.Serve(ctx)
	}()

	notify, err := e.expander.StartNotify(ctx)
	if err != nil {
		glog.Warningf("engine: notify fast-path disabled: %v", err)
		notify = nil
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()

		case err := <-serveErr:
			if err != nil {
				e.shutdown()
				return errors.Wrap(err, "query server")
			}
			// A nil error means ctx was cancelled; the <-ctx.Done() case
			// above will fire on the next iteration and shut down.

		case <-e.hup:
			e.expand(ctx)

		case <-notify:
			e.expand(ctx)

		case ev := <-e.watcherEvents:
			e.handleWatcherEvent(ev)

		case ev := <-e.scheduler.Events():
			e.handleSchedulerEvent(ev)

		case req := <-e.srv.Requests():
			e.handleRequest(req)

		case req := <-e.statsRequests:
			e.handleStatsRequest(req)
		}
	}
}

func (e *Engine) handleWatcherEvent(ev watch.Event) {
	e.mu.Lock()
	w, ok := e.watchers[ev.WatcherID]
	e.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Kind {
	case watch.EventLine:
		for _, zoneName := range w.Zones() {
			e.processLine(zoneName, ev.Line)
		}
	case watch.EventError:
		glog.Warningf("watcher %s (%s): %s", ev.WatcherID, w.Path, ev.Message)
	case watch.EventRotation:
		// The watcher itself already logged the rollover.
	}
}

func (e *Engine) processLine(zoneName, line string) {
	st, ok := e.store.Get(zoneName)
	if !ok {
		return
	}

	parsed, ok := e.plug.ProcessLine(line)
	if !ok {
		logAtLevel(e.parseErrorLevel, "zone %s: unparsable line: %s", zoneName, line)
		metrics.ParseErrors.WithLabelValues(zoneName).Inc()
		return
	}

	e.plug.ProcessData(parsed, st.Public, st.Private, st.Current())
	metrics.LinesProcessed.WithLabelValues(zoneName).Inc()
}

func (e *Engine) handleSchedulerEvent(ev sched.Event) {
	switch ev.Kind {
	case sched.HeartbeatExpand:
		e.expand(context.Background())
	case sched.HeartbeatWindow:
		e.slideWindows()
	case sched.HeartbeatSave:
		e.save()
	case sched.TimerFire:
		e.fireTimer(ev.Zone, ev.Name)
	}
}

func (e *Engine) fireTimer(zoneName, name string) {
	st, ok := e.store.Get(zoneName)
	if !ok {
		return
	}
	rearm := e.plug.ProcessTimer(name, st.Public, st.Private, st.Completed())
	if rearm {
		e.scheduler.Rearm(zoneName, name)
	}
}

// slideWindows runs the windows-heartbeat over active zones only:
// inactive zones receive no new lines, so rolling their windows would
// only ever prepend empties.
func (e *Engine) slideWindows() {
	for _, zoneName := range e.store.Active() {
		st, ok := e.store.Get(zoneName)
		if !ok {
			continue
		}
		e.plug.ProcessWindow(st.Public, st.Private, st.Windows)
		st.SlideWindow(e.cfg.WindowsNum)
	}
}

func (e *Engine) save() {
	snap := e.store.Snapshot()
	if err := persist.Save(e.cfg.DatabaseFile, snap); err != nil {
		glog.Errorf("persist: %v", err)
		metrics.SaveFailures.Inc()
		return
	}

	if e.archiver != nil {
		data, err := json.MarshalIndent(persist.Document{Zones: snap}, "", "  ")
		if err != nil {
			glog.Warningf("archive: encoding snapshot: %v", err)
			return
		}
		e.archiver.Archive(data)
	}
}

// expand re-globs every configured wildcard and reconciles the
// watcher set against the result, per spec.md §4.4.
func (e *Engine) expand(ctx context.Context) {
	matches, err := e.expander.Expand()
	if err != nil {
		glog.Warningf("expand: %v", err)
		return
	}

	seen := map[string]bool{}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range matches {
		seen[m.Path] = true

		zones := m.Zones
		if !e.cfg.Multiple && len(zones) > 1 {
			zones = zones[:1]
		}
		if len(zones) == 0 {
			continue
		}

		if w, ok := e.watchersByPath[m.Path]; ok {
			for _, z := range zones {
				w.AddZone(z)
			}
			continue
		}

		w, err := watch.New(ctx, m.Path, zones[0])
		if err != nil {
			glog.Warningf("expand: opening %q: %v", m.Path, err)
			continue
		}
		for _, z := range zones[1:] {
			w.AddZone(z)
		}
		e.attachWatcherLocked(w)
	}

	for path, w := range e.watchersByPath {
		if seen[path] {
			continue
		}
		delete(e.watchers, w.ID)
		delete(e.watchersByPath, path)
		w.Close()
	}

	metrics.WatchedFiles.Set(float64(len(e.watchers)))
}

func (e *Engine) attachWatcherLocked(w *watch.Watcher) {
	e.watchers[w.ID] = w
	e.watchersByPath[w.Path] = w
	go func() {
		for ev := range w.Events() {
			e.watcherEvents <- ev
		}
	}()
}

func (e *Engine) watchersForZone(zoneName string) []*watch.Watcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*watch.Watcher
	for _, w := range e.watchers {
		if w.HasZone(zoneName) {
			out = append(out, w)
		}
	}
	return out
}

func (e *Engine) shutdown() {
	e.save()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.watchers {
		w.Close()
	}
}

// handleRequest answers one query/command server request, per the
// verb table in spec.md §4.6.
func (e *Engine) handleRequest(req server.Request) {
	metrics.ClientCommands.WithLabelValues(req.Verb).Inc()

	switch req.Verb {
	case "zones":
		var lines []string
		for _, z := range e.store.Active() {
			lines = append(lines, "a:"+z)
		}
		for _, z := range e.store.Inactive() {
			lines = append(lines, "i:"+z)
		}
		req.Reply <- server.Response{Lines: lines}

	case "globs":
		if !e.store.IsActive(req.Arg) {
			req.Reply <- server.Response{Lines: []string{"no such active zone"}}
			return
		}
		globs := append([]string(nil), e.cfg.WildcardsForZone(req.Arg)...)
		sort.Strings(globs)
		req.Reply <- server.Response{Lines: globs}

	case "files":
		if !e.store.IsActive(req.Arg) {
			req.Reply <- server.Response{Lines: []string{"no such active zone"}}
			return
		}
		req.Reply <- server.Response{Lines: e.filesReply(req.Arg)}

	case "dump":
		st, ok := e.store.Get(req.Arg)
		if !ok {
			req.Reply <- server.Response{Lines: []string{"no such zone"}}
			return
		}
		req.Reply <- server.Response{Lines: e.plug.DumpZone(req.Arg, st.Public, st.Private, st.Completed())}

	case "stats":
		st, ok := e.store.Get(req.Arg)
		if !ok {
			req.Reply <- server.Response{Lines: []string{"no such zone"}}
			return
		}
		req.Reply <- server.Response{Lines: e.plug.StatsZone(req.Arg, st.Public, st.Private, st.Completed())}

	case "wipe":
		e.handleWipe(req)

	default:
		req.Reply <- server.Response{Lines: []string{"error"}}
	}
}

func (e *Engine) filesReply(zoneName string) []string {
	watchers := e.watchersForZone(zoneName)
	sort.Slice(watchers, func(i, j int) bool { return watchers[i].Path < watchers[j].Path })

	lines := make([]string, 0, len(watchers))
	for _, w := range watchers {
		lines = append(lines, fmt.Sprintf("%d:%d:%s", w.Offset(), w.Size(), w.Path))
	}
	return lines
}

func (e *Engine) handleWipe(req server.Request) {
	if req.Arg == "*" {
		e.store.WipeAllInactive()
		e.save()
		req.Reply <- server.Response{Lines: []string{"ok"}}
		return
	}

	ok, isActive := e.store.Wipe(req.Arg)
	switch {
	case ok:
		e.save()
		req.Reply <- server.Response{Lines: []string{"ok"}}
	case isActive:
		req.Reply <- server.Response{Lines: []string{"zone is active"}}
	default:
		req.Reply <- server.Response{Lines: []string{"no such inactive zone"}}
	}
}

func logAtLevel(level plugin.Level, format string, args ...interface{}) {
	switch level {
	case plugin.LevelDebug:
		glog.V(1).Infof(format, args...)
	case plugin.LevelInfo, plugin.LevelNotice:
		glog.Infof(format, args...)
	case plugin.LevelWarning:
		glog.Warningf(format, args...)
	case plugin.LevelError:
		glog.Errorf(format, args...)
	case plugin.LevelNone:
	default:
		glog.Infof(format, args...)
	}
}

package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "github.com/n00bc0der89/MotivationCoach-sub000/internal/runtime/supervisor"
	kit "github.com/n00bc0der89/MotivationCoach-sub000/internal/transport"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is one flat slash command. The surface is small and fixed, so
// there is no subcommand tree; Name is matched against the first token
// of the message.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

// Request carries one matched invocation into its handler.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	alias  map[string]string // alias -> canonical name
	owners []int64

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cmds:    map[string]Command{},
		alias:   map[string]string{},
		owners:  append([]int64(nil), owners...),
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 256),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) ownersSnapshot() []int64 {
	r.mu.RLock()
	cp := append([]int64(nil), r.owners...)
	r.mu.RUnlock()
	return cp
}

// Register installs the command set, replacing any earlier one. A /help
// command is always injected.
func (r *Router) Register(cmds ...Command) {
	all := append([]Command(nil), cmds...)
	all = append(all, r.helpCommand())

	m := map[string]Command{}
	alias := map[string]string{}
	for _, c := range all {
		name := sanitizeCommandName(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := m[name]; dup {
			continue
		}
		c.Name = name
		m[name] = c
		for _, a := range c.Aliases {
			a = sanitizeCommandName(a)
			if a == "" || a == name {
				continue
			}
			if _, exists := alias[a]; !exists {
				alias[a] = name
			}
		}
	}

	r.mu.Lock()
	r.cmds = m
	r.alias = alias
	r.mu.Unlock()
}

// lookup resolves a command name or alias.
func (r *Router) lookup(word string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cmds[word]; ok {
		return c, true
	}
	if canon, ok := r.alias[word]; ok {
		if c, ok2 := r.cmds[canon]; ok2 {
			return c, true
		}
	}
	return Command{}, false
}

// commandList returns the registry sorted for display: public commands
// alphabetically, owner-only ones after them.
func (r *Router) commandList() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		oi := out[i].Access == AccessOwnerOnly
		oj := out[j].Access == AccessOwnerOnly
		if oi != oj {
			return !oi
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel
// being closed mid-shutdown).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done. Handlers run on a
// bounded worker pool so one slow command cannot stall the rest.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	// Best-effort Telegram menu autocomplete update.
	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := r.menuCommands()
		sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Debug("menu update failed", logx.Err(err))
			}
		})
	}

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Mark as not running before closing so enqueue degrades
			// gracefully.
			r.runMu.Lock()
			r.running = false
			r.runMu.Unlock()
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, open := <-r.jobs:
					if !open {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; this keeps the
					// worker alive if a job panics outside the chain.
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job",
									logx.Int("worker", idx),
									logx.Any("panic", rec),
									logx.Stack(string(debug.Stack())),
								)
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		// Let workers drain briefly.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, open := <-updates:
			if !open {
				r.log.Info("command dispatcher stopped (updates channel closed)")
				return nil
			}
			r.routeMessage(ctx, up)
		}
	}
}

func (r *Router) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := parts[1:]

	cmd, ok := r.lookup(word)
	if !ok {
		// Stay quiet in groups: replying to every stray slash command
		// gets bots muted or kicked.
		if !msg.IsGroup {
			_, _ = r.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "unknown command, try /help", nil)
		}
		return
	}
	r.enqueueCommand(root, up, cmd, args)
}

func (r *Router) enqueueCommand(root context.Context, up kit.Update, cmd Command, args []string) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	owners := r.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		_, _ = r.adapter.SendText(root, chat, "unauthorized", nil)
		return
	}

	rid := newReqID()
	reqLog := r.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)

	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger:  reqLog,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)

	if !r.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = r.adapter.SendText(root, chat, "busy, try again", nil)
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

package router

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is one routable chat command. Route is space separated
// ("remind add"); Aliases are extra one-word names ("remind_add").
type Command struct {
	Route       string
	Aliases     []string
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // 0: no per-command deadline
	Handle  HandlerFunc
}

// Request is what a handler gets. Args are the positionals after the route;
// RawArgs keeps the words before flag parsing.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string
	Command string
	Args    []string

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter kit.Adapter
	Logger  logx.Logger
	IsOwner bool
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML is Reply with ParseMode=HTML.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

const (
	defaultWorkers  = 2
	queuePerWorker  = 32
	menuSyncTimeout = 5 * time.Second
)

// job is one routed command waiting for a worker.
type job struct {
	run HandlerFunc
	req *Request
}

// CommandManager routes chat messages to commands and runs the handlers on
// a fixed pool of workers. A full queue answers "busy" instead of blocking
// the update stream.
type CommandManager struct {
	log     logx.Logger
	adapter kit.Adapter
	workers int

	mu     sync.RWMutex
	routes *commandTree
	owners []int64

	// appSup runs the menu sync; nil in tests.
	supMu  sync.Mutex
	appSup *rtsup.Supervisor
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64, workers int) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &CommandManager{
		log:     log,
		adapter: adapter,
		workers: workers,
		routes:  buildTree(nil),
		owners:  slices.Clone(owners),
	}
}

// SetAppSupervisor makes background work (menu sync) run under sup.
func (m *CommandManager) SetAppSupervisor(sup *rtsup.Supervisor) {
	m.supMu.Lock()
	m.appSup = sup
	m.supMu.Unlock()
}

// SetOwners replaces the ids allowed to run owner-only commands. Applied
// on config reload.
func (m *CommandManager) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

func (m *CommandManager) tree() *commandTree {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.routes
}

// SetRegistry replaces the command set and pushes the new menu to the
// transport if it supports one. /help is always added.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Route:       "help",
		Aliases:     []string{"h", "start"},
		Description: "show help",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, m.helpText(req.Args))
		},
	})
	t := buildTree(cmds)
	m.mu.Lock()
	m.routes = t
	m.mu.Unlock()

	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := menuCommands(t)
	syncMenu := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, menuSyncTimeout)
		defer cancel()
		if err := up.UpdateMenuCommands(ctx, menu); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
	}

	m.supMu.Lock()
	sup := m.appSup
	m.supMu.Unlock()
	if sup == nil || !sup.Go0("telegram.menu.update", syncMenu) {
		go syncMenu(context.Background())
	}
}

// DispatchLoop routes updates until ctx is done or updates is closed, then
// lets the workers finish what is queued (bounded).
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log.With(logx.String("comp", "router.pool"))))
	queue := make(chan job, m.workers*queuePerWorker)
	// Queued commands still run during shutdown; the Wait below bounds them.
	hctx := context.WithoutCancel(ctx)

	for i := range m.workers {
		sup.Go("command.worker."+strconv.Itoa(i), func(context.Context) error {
			for j := range queue {
				_ = j.run(hctx, j.req)
			}
			return nil
		})
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("queue", cap(queue)))

	defer func() {
		close(queue)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil {
			m.log.Warn("command workers still busy at stop", logx.Err(err))
		}
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			if j, ok := m.route(ctx, up); ok {
				select {
				case queue <- j:
				default:
					_ = j.req.Reply(ctx, "busy, try again")
				}
			}
		}
	}
}

// route turns a message into a job. Unknown commands and bare groups are
// answered right here and produce no job.
func (m *CommandManager) route(ctx context.Context, up kit.Update) (job, bool) {
	msg := up.Message
	words := tokenizeCommandLine(strings.TrimSpace(msg.Text))
	if len(words) == 0 || !strings.HasPrefix(words[0], "/") {
		return job{}, false
	}
	// "/remind@remindbot" in groups.
	word, _, _ := strings.Cut(words[0][1:], "@")
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	node, path, rest := m.tree().resolve(word, words[1:])
	switch {
	case node == nil:
		_, _ = m.adapter.SendText(ctx, chat, "unknown command, try /help", nil)
		return job{}, false
	case node.cmd == nil:
		_, _ = m.adapter.SendText(ctx, chat, m.helpText(path), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return job{}, false
	}

	cmd := *node.cmd
	args, flags, bools := parseFlags(rest)
	rid := newReqID()
	req := &Request{
		Update:    up,
		Chat:      chat,
		FromID:    msg.FromID,
		Path:      path,
		Command:   cmd.Route,
		Args:      args,
		RawArgs:   rest,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		Adapter:   m.adapter,
		IsOwner:   m.isOwner(msg.FromID),
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}
	run := Chain(cmd.Handle,
		MWPanicRecover(),
		MWRequestLog(),
		MWOwnerOnly(cmd.Access),
		MWTimeout(cmd.Timeout),
	)
	return job{run: run, req: req}, true
}

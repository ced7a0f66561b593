package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "eventbot/internal/runtime/supervisor"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

type CommandManager struct {
	mu        sync.RWMutex
	root      *cmdNode
	alias     map[string]*cmdNode
	callbacks map[string]map[string]CallbackRoute // group -> action -> route
	operators []int64

	log     logx.Logger
	adapter kit.Adapter
	opts    Options

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	queues  []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, operators []int64, opts Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = max(runtime.NumCPU(), 2)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	opts.Texts = opts.Texts.withDefaults()
	return &CommandManager{
		root:      newRoot(),
		alias:     map[string]*cmdNode{},
		callbacks: map[string]map[string]CallbackRoute{},
		operators: slices.Clone(operators),
		log:       log.With(logx.Component("telegram.router")),
		adapter:   adapter,
		opts:      opts,
	}
}

// Supervisor returns the dispatcher supervisor (nil when not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// SetOperators replaces the operator allow-list. Safe during hot reload.
func (m *CommandManager) SetOperators(ids []int64) {
	cp := slices.Clone(ids)
	m.mu.Lock()
	m.operators = cp
	m.mu.Unlock()
}

func (m *CommandManager) IsOperator(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.operators, id)
}

func (m *CommandManager) Operators() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.operators)
}

// SetRegistry installs commands and callback routes. /help is always added.
// The platform command menu is refreshed in the background.
func (m *CommandManager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Route:       "help",
		Description: "show available commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, m.helpText(req.Args, req.IsOperator), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		leaf := root.add(route, c)
		// Multi-token routes also answer to their menu form, e.g. /wishlist_add.
		if name, ok := telegramCommandNameFromRoute(route); ok && (len(route) > 1 || name != route[0]) {
			if _, taken := alias[name]; !taken {
				alias[name] = leaf
			}
		}
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				alias[a] = leaf
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		g, a := strings.TrimSpace(r.Group), strings.TrimSpace(r.Action)
		if g == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[g] == nil {
			cb[g] = map[string]CallbackRoute{}
		}
		cb[g][a] = r
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.callbacks = cb
	m.mu.Unlock()

	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := buildTelegramMenuCommands(root)
	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, menu); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
	}()
}

// DispatchLoop routes updates until ctx is done or updates is closed.
// Work for one user always lands on the same queue, so a user's updates
// are handled in arrival order.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	queues := make([]chan func(), m.opts.Workers)
	for i := range queues {
		queues[i] = make(chan func(), m.opts.QueueSize)
	}
	m.runMu.Lock()
	m.sup, m.queues, m.running = sup, queues, true
	m.runMu.Unlock()

	for i, q := range queues {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			return m.work(c, i, q)
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", len(queues)), logx.Int("queue_cap", m.opts.QueueSize))

	defer func() {
		m.runMu.Lock()
		m.running = false
		m.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup, m.queues = nil, nil
		m.runMu.Unlock()
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
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) work(ctx context.Context, idx int, q <-chan func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q:
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (m *CommandManager) enqueue(userID int64, job func()) bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running || len(m.queues) == 0 {
		return false
	}
	idx := int(uint64(userID) % uint64(len(m.queues)))
	select {
	case m.queues[idx] <- job:
		return true
	default:
		return false
	}
}

func (m *CommandManager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			m.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			m.routeCallback(ctx, up)
		}
	}
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, from kit.User, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Message: up.Message,
		Chat:    chat,
		From:    from,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from.ID),
		),
		IsOperator: m.IsOperator(from.ID),
	}
}

func (m *CommandManager) reply(ctx context.Context, chat kit.ChatTarget, text string) {
	if _, err := m.adapter.SendText(ctx, chat, text, nil); err != nil {
		m.log.Debug("router reply failed", logx.Err(err))
	}
}

// admit applies the inbound per-user limit. Rejected users get a throttled notice.
func (m *CommandManager) admit(ctx context.Context, chat kit.ChatTarget, userID int64) bool {
	if m.opts.Inbound == nil || m.opts.Inbound.Allow(userID) {
		return true
	}
	inboundDropped.Inc()
	if m.opts.SlowDownNotice == nil || m.opts.SlowDownNotice.Allow(userID) {
		m.reply(ctx, chat, m.opts.Texts.SlowDown)
	}
	return false
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	exempt := m.opts.Exempt != nil && m.opts.Exempt(up)
	if !exempt && !m.admit(ctx, chat, msg.From.ID) {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if msg.Media != nil || !strings.HasPrefix(text, "/") {
		m.routeFallback(ctx, up, chat)
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := commandWord(parts[0])
	args := parts[1:]

	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if leaf, ok := alias[word]; ok && leaf.cmd != nil {
		m.enqueueCommand(ctx, up, chat, *leaf.cmd, splitRoute(leaf.cmd.Route), args)
		return
	}

	cur, ok := root.child(word)
	if !ok {
		m.reply(ctx, chat, m.opts.Texts.Unknown)
		return
	}
	path := []string{word}
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		next, ok := cur.child(args[0])
		if !ok {
			break
		}
		cur = next
		path = append(path, args[0])
		args = args[1:]
	}

	if cur.cmd == nil {
		isOp := m.IsOperator(msg.From.ID)
		if _, err := m.adapter.SendText(ctx, chat, m.helpText(path, isOp), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
			m.log.Debug("help reply failed", logx.Err(err))
		}
		return
	}
	m.enqueueCommand(ctx, up, chat, *cur.cmd, path, args)
}

func (m *CommandManager) enqueueCommand(ctx context.Context, up kit.Update, chat kit.ChatTarget, cmd Command, path, raw []string) {
	req := m.newRequest(up, chat, up.Message.From, cmd.Route)
	if cmd.Access == AccessOperator && !req.IsOperator {
		m.reply(ctx, chat, m.opts.Texts.Unauthorized)
		return
	}
	req.Path = path
	req.RawArgs = raw
	req.Args, req.Flags, req.BoolFlags = parseFlags(raw)
	req.Logger = req.Logger.With(logx.String("cmd", cmd.Route))

	final := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(cmd.Timeout))
	if !m.enqueue(req.From.ID, func() { _ = final(ctx, req) }) {
		m.reply(ctx, chat, m.opts.Texts.Busy)
	}
}

func (m *CommandManager) routeFallback(ctx context.Context, up kit.Update, chat kit.ChatTarget) {
	if m.opts.Fallback == nil || up.Message.IsGroup {
		return
	}
	req := m.newRequest(up, chat, up.Message.From, "message")
	final := Chain(m.opts.Fallback, MWPanicRecover(m.log), MWRequestLog(m.log))
	if !m.enqueue(req.From.ID, func() { _ = final(ctx, req) }) {
		m.reply(ctx, chat, m.opts.Texts.Busy)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	group, rest, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	action, payload, _ := strings.Cut(rest, ":")

	m.mu.RLock()
	route, ok := m.callbacks[group][action]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	if !m.admit(ctx, chat, cb.From.ID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	req := m.newRequest(up, chat, cb.From, "cb:"+group+":"+action)
	if route.Access == CallbackAccessOperator && !req.IsOperator {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}
	req.Payload = payload

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(h, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(route.Timeout))
	if !m.enqueue(req.From.ID, func() {
		_ = final(ctx, req)
		// Clears the client-side spinner.
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, m.opts.Texts.Busy)
	}
}

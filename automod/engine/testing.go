package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/detect"
	"github.com/guildwarden/warden/automod/event"
	"github.com/guildwarden/warden/automod/flagstore"
	"github.com/guildwarden/warden/automod/ingress"
	"github.com/guildwarden/warden/automod/registry"
	"github.com/guildwarden/warden/automod/settings"
)

// Records every call made against the platform. Errors can be injected per method name ("delete", "timeout", "kick", "ban", "send", "embed", "fetch", "list").
type MockPlatform struct {
	mu       sync.Mutex
	Calls    []string
	Messages map[string][]string
	// users allowed to be pinged, per channel
	Pinged   map[string][]string
	Embeds   map[string][]*Embed
	Channels []Channel
	Errors   map[string]error
	Bans     map[string]time.Duration
	Timeouts map[string]time.Duration
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		Messages: make(map[string][]string),
		Pinged:   make(map[string][]string),
		Embeds:   make(map[string][]*Embed),
		Errors:   make(map[string]error),
		Bans:     make(map[string]time.Duration),
		Timeouts: make(map[string]time.Duration),
	}
}

func (p *MockPlatform) call(name, detail string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, name+":"+detail)
	return p.Errors[name]
}

func (p *MockPlatform) CallCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Calls {
		if len(c) > len(name) && c[:len(name)+1] == name+":" {
			n++
		}
	}
	return n
}

func (p *MockPlatform) DeleteMessage(ctx context.Context, ref event.MessageRef) error {
	return p.call("delete", ref.MessageID)
}

func (p *MockPlatform) TimeoutMember(ctx context.Context, workspaceID, userID string, duration time.Duration, reason string) error {
	if err := p.call("timeout", userID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Timeouts[userID] = duration
	return nil
}

func (p *MockPlatform) KickMember(ctx context.Context, workspaceID, userID, reason string) error {
	return p.call("kick", userID)
}

func (p *MockPlatform) BanMember(ctx context.Context, workspaceID, userID, reason string, purgeWindow time.Duration) error {
	if err := p.call("ban", userID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Bans[userID] = purgeWindow
	return nil
}

func (p *MockPlatform) SendMessage(ctx context.Context, channelID, text string, pingUsers []string) error {
	if err := p.call("send", channelID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages[channelID] = append(p.Messages[channelID], text)
	p.Pinged[channelID] = append(p.Pinged[channelID], pingUsers...)
	return nil
}

func (p *MockPlatform) SendEmbed(ctx context.Context, channelID string, embed *Embed) error {
	if err := p.call("embed", channelID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Embeds[channelID] = append(p.Embeds[channelID], embed)
	return nil
}

func (p *MockPlatform) FetchChannel(ctx context.Context, channelID string) (*Channel, error) {
	if err := p.call("fetch", channelID); err != nil {
		return nil, err
	}
	for _, ch := range p.Channels {
		if ch.ID == channelID {
			return &ch, nil
		}
	}
	return nil, fmt.Errorf("channel not found: %s", channelID)
}

func (p *MockPlatform) ListChannels(ctx context.Context, workspaceID string) ([]Channel, error) {
	if err := p.call("list", workspaceID); err != nil {
		return nil, err
	}
	return p.Channels, nil
}

// Classifier returning a fixed reply (or error), counting calls
type MockClassifier struct {
	mu    sync.Mutex
	Reply string
	Err   error
	Calls int
}

func (c *MockClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	return c.Reply, c.Err
}

// Engine wired to in-memory stores, a mock platform and a mock classifier. Workspace "ws1" is monitored with a small rule list, and has a "mod-log" channel.
type TestFixture struct {
	Engine     *Engine
	Registry   *registry.CachedRegistry
	Platform   *MockPlatform
	Classifier *MockClassifier
	Audit      *auditlog.MemStore
	Flags      *flagstore.MemFlagStore
	Counters   *countstore.MemCountStore
}

const TestBotID = "bot0"

func EngineTestFixture() TestFixture {
	logger := slog.Default()
	reg := registry.NewCachedRegistry(settings.NewMemStore(), logger)
	err := reg.Set(context.Background(), &settings.MonitorSettings{
		WorkspaceID: "ws1",
		Enabled:     true,
		Rules:       []string{"không chat s4ory", "Không spam link", "Không xúc phạm thành viên"},
	})
	if err != nil {
		panic(err)
	}

	plat := NewMockPlatform()
	plat.Channels = []Channel{
		{ID: "chan-general", WorkspaceID: "ws1", Name: "general"},
		{ID: "chan-modlog", WorkspaceID: "ws1", Name: "mod-log"},
	}
	cl := &MockClassifier{Reply: "VIOLATION: Không\nSEVERITY: Không\nACTION: Không\nREASON: ok"}
	audit := auditlog.NewMemStore()
	flags := flagstore.NewMemFlagStore()
	counters := countstore.NewMemCountStore()

	eng := &Engine{
		Logger: logger,
		Filter: &ingress.Filter{
			Registry:        reg,
			BotID:           TestBotID,
			WarningPrefixes: WarningPrefixes(),
		},
		Detector: &detect.Detector{Classifier: cl, Timeout: time.Second, Logger: logger},
		Audit:    audit,
		Counters: counters,
		Cache:    cachestore.NewMemCacheStore(100, AuditChannelTTL),
		Flags:    flags,
		Platform: plat,
		BotID:    TestBotID,
	}
	return TestFixture{
		Engine:     eng,
		Registry:   reg,
		Platform:   plat,
		Classifier: cl,
		Audit:      audit,
		Flags:      flags,
		Counters:   counters,
	}
}

func TestMessage(text string) *event.MessageEvent {
	return &event.MessageEvent{
		WorkspaceID: "ws1",
		ChannelID:   "chan-general",
		MessageID:   "msg1",
		AuthorID:    "user1",
		Text:        text,
		Timestamp:   time.Now().UTC(),
	}
}

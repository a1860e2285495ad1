package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/relaydesk/relaydesk/internal/channel"
)

const refreshInterval = 5 * time.Minute

// ChannelSource lists active email channels with decrypted credentials.
type ChannelSource interface {
	ListActiveWithCredentials(ctx context.Context, types ...channel.ChannelType) ([]channel.WithCredentials, error)
}

// Manager runs one polling loop per active email channel. Channel
// configuration is re-read periodically so newly created or deactivated
// channels are picked up without a restart.
type Manager struct {
	logger          *slog.Logger
	channels        ChannelSource
	processor       *Processor
	defaultInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	pollers map[string]pollerHandle
	wg      sync.WaitGroup
}

// pollerHandle tracks a running loop and the channel revision it was
// started from, so a config edit restarts the loop with fresh settings.
type pollerHandle struct {
	cancel    context.CancelFunc
	updatedAt time.Time
}

// NewManager creates a Manager. defaultInterval applies to channels without
// an explicit poll interval.
func NewManager(log *slog.Logger, channels ChannelSource, processor *Processor, defaultInterval time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if defaultInterval <= 0 {
		defaultInterval = time.Minute
	}
	return &Manager{
		logger:          log.With(slog.String("service", "mailbox")),
		channels:        channels,
		processor:       processor,
		defaultInterval: defaultInterval,
		pollers:         make(map[string]pollerHandle),
	}
}

// Start launches the refresh loop. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refresh(ctx)
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()
}

// Stop cancels all pollers and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// refresh reconciles running pollers against the current channel registry.
func (m *Manager) refresh(ctx context.Context) {
	channels, err := m.channels.ListActiveWithCredentials(ctx, channel.TypeEmail)
	if err != nil {
		m.logger.Error("list email channels", slog.Any("error", err))
		return
	}

	active := make(map[string]channel.WithCredentials, len(channels))
	for _, ch := range channels {
		active[ch.ID] = ch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, handle := range m.pollers {
		ch, ok := active[id]
		if !ok {
			m.logger.Info("stopping poller for removed channel", slog.String("channel_id", id))
			handle.cancel()
			delete(m.pollers, id)
			continue
		}
		if !ch.UpdatedAt.Equal(handle.updatedAt) {
			m.logger.Info("restarting poller for updated channel", slog.String("channel_id", id))
			handle.cancel()
			delete(m.pollers, id)
		}
	}
	for id, ch := range active {
		if _, ok := m.pollers[id]; ok {
			continue
		}
		pctx, cancel := context.WithCancel(ctx)
		m.pollers[id] = pollerHandle{cancel: cancel, updatedAt: ch.UpdatedAt}
		m.wg.Add(1)
		go m.runLoop(pctx, ch)
	}
}

func (m *Manager) runLoop(ctx context.Context, ch channel.WithCredentials) {
	defer m.wg.Done()

	interval := m.defaultInterval
	if ch.PollIntervalSeconds > 0 {
		interval = time.Duration(ch.PollIntervalSeconds) * time.Second
	}
	log := m.logger.With(slog.String("channel_id", ch.ID), slog.String("channel", ch.DisplayName))
	log.Info("email poller started", slog.Duration("interval", interval))

	for {
		if err := m.pollOnce(ctx, ch); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("poll cycle failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// pollOnce runs a single fetch cycle: connect, search unseen, process each
// message in isolation, then mark the processed ones seen. A message that
// fails to store is left unseen for the next cycle.
func (m *Manager) pollOnce(ctx context.Context, ch channel.WithCredentials) error {
	creds := ch.Credentials.Email
	if creds == nil {
		return fmt.Errorf("channel %s has no email credentials", ch.ID)
	}

	client, err := dialIMAP(ch.Channel, *creds)
	if err != nil {
		return err
	}
	defer closeIMAP(client)

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	var uidSet imap.UIDSet
	uidSet.AddNum(uids...)
	fetchCmd := client.Fetch(uidSet, &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	})
	defer fetchCmd.Close()

	var processed imap.UIDSet
	count := 0
	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil || buf.Envelope == nil {
			continue
		}
		parsed := parseFetched(buf)
		if _, err := m.processor.ProcessInbound(ctx, ch.ID, parsed); err != nil {
			m.logger.Error("process inbound email",
				slog.String("channel_id", ch.ID),
				slog.Uint64("uid", uint64(parsed.UID)),
				slog.Any("error", err))
			continue
		}
		processed.AddNum(buf.UID)
		count++
	}

	if count > 0 {
		storeCmd := client.Store(processed, &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil)
		if err := storeCmd.Close(); err != nil {
			m.logger.Warn("mark seen failed", slog.String("channel_id", ch.ID), slog.Any("error", err))
		}
		m.logger.Info("poll cycle completed", slog.String("channel_id", ch.ID), slog.Int("processed", count))
	}
	return nil
}

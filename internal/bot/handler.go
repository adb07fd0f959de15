// Package bot wires search, the result cache and delivery into the chat
// flow: a text message is a query, inline buttons page through results and
// pick one to deliver.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"kinobot/internal/delivery"
	"kinobot/internal/domain"
	"kinobot/internal/resultcache"
	"kinobot/internal/search"
	"kinobot/internal/telegram"
)

const (
	textHelp        = "Send me a title and I will find it in the catalog."
	textDenied      = "Access denied."
	textNotFound    = "Nothing found for your query."
	textExpired     = "These results have expired, please search again."
	textForbidden   = "These results belong to someone else."
	textBadPage     = "Invalid page."
	textBadRequest  = "Invalid request."
	textUnavailable = "This title is no longer available."
	textFailure     = "Something went wrong, please try again later."
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string, alert bool) error
}

type Searcher interface {
	FindTopMatches(ctx context.Context, query string, opts search.MatchOptions) ([]domain.MatchResult, error)
}

type Deliverer interface {
	DeliverAndRepair(ctx context.Context, token string, job domain.DeliveryJob) (delivery.Receipt, error)
}

// SearchLogger records queries. Failures never reach the user.
type SearchLogger interface {
	LogSearch(ctx context.Context, entry domain.SearchLogEntry) error
}

type Config struct {
	Match    search.MatchOptions
	PageSize int
	Protect  bool
	TTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Match:    search.DefaultMatchOptions(),
		PageSize: resultcache.DefaultPageSize,
		Protect:  true,
		TTL:      24 * time.Hour,
	}
}

type Handler struct {
	messenger Messenger
	searcher  Searcher
	cache     resultcache.Store
	deliverer Deliverer
	access    AccessChecker
	searchLog SearchLogger
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

type Option func(*Handler)

func WithAccessChecker(access AccessChecker) Option {
	return func(h *Handler) {
		if access != nil {
			h.access = access
		}
	}
}

func WithSearchLogger(logger SearchLogger) Option {
	return func(h *Handler) {
		h.searchLog = logger
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithConfig(cfg Config) Option {
	return func(h *Handler) {
		if cfg.PageSize <= 0 {
			cfg.PageSize = resultcache.DefaultPageSize
		}
		h.cfg = cfg
	}
}

func NewHandler(messenger Messenger, searcher Searcher, cache resultcache.Store, deliverer Deliverer, opts ...Option) *Handler {
	h := &Handler{
		messenger: messenger,
		searcher:  searcher,
		cache:     cache,
		deliverer: deliverer,
		access:    AllowList(nil),
		logger:    slog.Default(),
		cfg:       DefaultConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpdate implements telegram.UpdateHandler.
func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) {
	var err error
	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		err = h.HandleQuery(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
	case update.CallbackQuery != nil:
		err = h.HandleCallback(ctx, *update.CallbackQuery)
	default:
		return
	}
	if err != nil {
		h.logger.Warn("update failed",
			slog.Int64("update_id", update.UpdateID),
			slog.String("error", err.Error()),
		)
	}
}

// HandleQuery runs a search for text and answers in chatID.
func (h *Handler) HandleQuery(ctx context.Context, chatID, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		if cmd := strings.Fields(text)[0]; cmd == "/start" || cmd == "/help" {
			return h.send(ctx, chatID, textHelp)
		}
		return nil
	}

	allowed, err := h.access.Allowed(ctx, userID)
	if err != nil {
		h.logger.Warn("access check failed", slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}
	if !allowed {
		return h.send(ctx, chatID, textDenied)
	}

	results, err := h.searcher.FindTopMatches(ctx, text, h.cfg.Match)
	if err != nil {
		_ = h.send(ctx, chatID, textFailure)
		return err
	}
	h.logSearch(ctx, userID, text, len(results) > 0)

	switch len(results) {
	case 0:
		return h.send(ctx, chatID, textNotFound)
	case 1:
		// One hit goes straight to delivery: no token, no list.
		return h.deliver(ctx, chatID, "", results[0].Locator())
	}

	token, err := h.cache.Create(ctx, userID, results)
	if err != nil {
		_ = h.send(ctx, chatID, textFailure)
		return err
	}
	page, err := h.cache.GetPage(ctx, token, userID, 0, h.cfg.PageSize)
	if err != nil {
		_ = h.send(ctx, chatID, userMessage(err))
		return err
	}
	_, err = h.messenger.SendMessage(ctx, chatID, pageHeader(page), pageKeyboard(page))
	return err
}

// HandleCallback serves the inline navigation and selection buttons.
func (h *Handler) HandleCallback(ctx context.Context, query telegram.CallbackQuery) error {
	cb, ok := parseCallback(query.Data)
	if !ok || query.Message == nil {
		return h.messenger.AnswerCallbackQuery(ctx, query.ID, textBadRequest, true)
	}
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	switch cb.kind {
	case navPrefix:
		page, err := h.cache.GetPage(ctx, cb.token, userID, cb.page, h.cfg.PageSize)
		if err != nil {
			return h.messenger.AnswerCallbackQuery(ctx, query.ID, userMessage(err), true)
		}
		if err := h.messenger.EditMessageText(ctx, chatID, query.Message.MessageID, pageHeader(page), pageKeyboard(page)); err != nil {
			return err
		}
		return h.messenger.AnswerCallbackQuery(ctx, query.ID, "", false)

	case selectPrefix:
		set, err := h.cache.Get(ctx, cb.token, userID)
		if err != nil {
			return h.messenger.AnswerCallbackQuery(ctx, query.ID, userMessage(err), true)
		}
		if !set.Contains(cb.loc) {
			h.logger.Warn("selection outside the result list",
				slog.Int64("userId", userID),
				slog.String("locator", cb.loc.String()),
			)
			return h.messenger.AnswerCallbackQuery(ctx, query.ID, textBadRequest, true)
		}
		if err := h.messenger.AnswerCallbackQuery(ctx, query.ID, "", false); err != nil {
			h.logger.Debug("answer callback failed", slog.String("error", err.Error()))
		}
		return h.deliverFromList(ctx, chatID, userID, query.Message.MessageID, cb)
	}
	return nil
}

func (h *Handler) deliverFromList(ctx context.Context, chatID, userID, listMessageID int64, cb callback) error {
	receipt, err := h.deliverer.DeliverAndRepair(ctx, cb.token, h.job(chatID, cb.loc))
	if err != nil && receipt.State != domain.DeliveryStaleSource {
		_ = h.send(ctx, chatID, textFailure)
		return err
	}
	if receipt.State != domain.DeliveryStaleSource {
		return nil
	}
	if err != nil {
		// The list itself may have expired while the user was reading it.
		h.logger.Info("result list repair failed", slog.String("error", err.Error()))
	}

	if sendErr := h.send(ctx, chatID, textUnavailable); sendErr != nil {
		return sendErr
	}
	if receipt.Remaining == 0 {
		return h.messenger.EditMessageText(ctx, chatID, listMessageID, textNotFound, nil)
	}
	page, pageErr := h.cache.GetPage(ctx, cb.token, userID, 0, h.cfg.PageSize)
	if pageErr != nil {
		return nil
	}
	return h.messenger.EditMessageText(ctx, chatID, listMessageID, pageHeader(page), pageKeyboard(page))
}

func (h *Handler) deliver(ctx context.Context, chatID int64, token string, loc domain.Locator) error {
	receipt, err := h.deliverer.DeliverAndRepair(ctx, token, h.job(chatID, loc))
	if err != nil {
		_ = h.send(ctx, chatID, textFailure)
		return err
	}
	if receipt.State == domain.DeliveryStaleSource {
		return h.send(ctx, chatID, textUnavailable)
	}
	return nil
}

func (h *Handler) job(chatID int64, loc domain.Locator) domain.DeliveryJob {
	return domain.DeliveryJob{
		Destination: chatID,
		ContainerID: loc.ContainerID,
		ItemID:      loc.ItemID,
		Protect:     h.cfg.Protect,
		TTL:         h.cfg.TTL,
	}
}

func (h *Handler) logSearch(ctx context.Context, userID int64, query string, found bool) {
	if h.searchLog == nil {
		return
	}
	entry := domain.SearchLogEntry{
		UserID:    userID,
		Query:     search.Normalize(query),
		Found:     found,
		CreatedAt: h.now().UTC(),
	}
	if err := h.searchLog.LogSearch(ctx, entry); err != nil {
		h.logger.Warn("search log write failed", slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) error {
	_, err := h.messenger.SendMessage(ctx, chatID, text, nil)
	return err
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCacheNotFound):
		return textExpired
	case errors.Is(err, domain.ErrCacheForbidden):
		return textForbidden
	case errors.Is(err, domain.ErrCacheOutOfRange):
		return textBadPage
	default:
		return textFailure
	}
}

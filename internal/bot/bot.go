package bot

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/raine/itemcheck/internal/router"
	"github.com/rs/zerolog/log"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Analyzer routes free text to a listing analysis or a product search.
type Analyzer interface {
	AnalyzeOrSearch(ctx context.Context, req router.AnalysisRequest, ownerID string) (*router.UnifiedResult, error)
}

// Flows are the image and text analyses reachable through commands.
type Flows interface {
	AnalyzeImageForDamage(ctx context.Context, in flows.ImageInput) (*flows.DamageReport, error)
	AnalyzeTextForBias(ctx context.Context, in flows.TextInput) (*flows.BiasAnalysis, error)
	ExtractAndAnalyzeImage(ctx context.Context, in flows.ImageInput) (*flows.ImageTextAnalysis, error)
}

// HistoryReader is the read side of history.Store.
type HistoryReader interface {
	List(ctx context.Context, ownerID string) ([]history.Summary, error)
	Get(ctx context.Context, ownerID, id string) (*history.Entry, error)
}

type Options struct {
	Router  Analyzer
	Flows   Flows
	History HistoryReader
	// AllowedUsers limits the bot to these Telegram ids. Empty allows all.
	AllowedUsers []int64
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   *BotState
	router  Analyzer
	flows   Flows
	history HistoryReader
	allowed map[int64]bool
}

func NewBot(tg BotAPI, opts Options) *Bot {
	b := &Bot{
		tg:      tg,
		router:  opts.Router,
		flows:   opts.Flows,
		history: opts.History,
	}
	if len(opts.AllowedUsers) > 0 {
		b.allowed = make(map[int64]bool, len(opts.AllowedUsers))
		for _, id := range opts.AllowedUsers {
			b.allowed[id] = true
		}
	}
	b.state = b.NewBotState()
	return b
}

// HandleUpdate hands the update to the sender's session worker.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync waits for the update to be processed.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userId := update.Message.From.ID

	// before getUserSession so random ids cannot allocate workers
	if b.allowed != nil && !b.allowed[userId] {
		log.Debug().Int64("userId", userId).Msg("ignoring message from user not on allow list")
		return
	}

	log.Info().
		Int64("userId", userId).
		Str("text", update.Message.Text).
		Str("caption", update.Message.Caption).
		Bool("photo", len(update.Message.Photo) > 0).
		Msg("got message")

	session := b.state.getUserSession(userId)
	msg := SessionMessage{Ctx: ctx, Message: update.Message}
	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage runs on the session worker, one message at a time.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	if msg.Message == nil {
		return
	}
	if len(msg.Message.Photo) > 0 {
		b.handlePhotoMessage(ctx, session, msg.Message)
		return
	}
	b.handleTextMessage(ctx, session, msg.Message)
}

func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, session, text)
		return
	}
	stopTyping := b.startTyping(ctx, session)
	defer stopTyping()
	b.analyze(ctx, session, requestFromText(text, ""))
}

func (b *Bot) handleCommand(ctx context.Context, session *UserSession, text string) {
	command, args := parseCommand(text)
	argsStr := strings.Join(args, " ")
	switch command {
	case "/start", "/help":
		session.reply(MsgStart)
	case "/bias":
		b.handleBiasCommand(ctx, session, argsStr)
	case "/damage", "/ocr":
		session.reply(MsgPhotoRequired, command)
	case "/history":
		b.handleHistoryCommand(ctx, session)
	case "/show":
		b.handleShowCommand(ctx, session, argsStr)
	default:
		session.reply(MsgStart)
	}
}

func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	caption := strings.TrimSpace(message.Caption)
	if caption == "" {
		session.reply(MsgPhotoNeedsCaption)
		return
	}

	stopTyping := b.startTyping(ctx, session)
	defer stopTyping()

	image, err := photoDataURI(ctx, b.tg.GetFileDirectURL, message.Photo)
	if err != nil {
		session.replyWithError(err)
		return
	}

	command, args := parseCommand(caption)
	switch command {
	case "/damage":
		report, err := b.flows.AnalyzeImageForDamage(ctx, flows.ImageInput{Image: image})
		if err != nil {
			b.replyFlowError(session, err)
			return
		}
		session._reply(formatDamageReport(report))
	case "/ocr":
		analysis, err := b.flows.ExtractAndAnalyzeImage(ctx, flows.ImageInput{Image: image})
		if err != nil {
			b.replyFlowError(session, err)
			return
		}
		session._reply(formatImageTextAnalysis(analysis))
	default:
		if strings.HasPrefix(command, "/") {
			caption = strings.Join(args, " ")
			if caption == "" {
				session.reply(MsgPhotoNeedsCaption)
				return
			}
		}
		b.analyze(ctx, session, requestFromText(caption, image))
	}
}

func (b *Bot) analyze(ctx context.Context, session *UserSession, req router.AnalysisRequest) {
	res, err := b.router.AnalyzeOrSearch(ctx, req, session.ownerID())
	if err != nil {
		b.replyFlowError(session, err)
		return
	}
	session._reply(formatUnifiedResult(res))
}

func (b *Bot) handleBiasCommand(ctx context.Context, session *UserSession, text string) {
	if strings.TrimSpace(text) == "" {
		session.reply(MsgBiasUsage)
		return
	}
	stopTyping := b.startTyping(ctx, session)
	defer stopTyping()

	analysis, err := b.flows.AnalyzeTextForBias(ctx, flows.TextInput{Text: text})
	if err != nil {
		b.replyFlowError(session, err)
		return
	}
	session._reply(formatBiasAnalysis(analysis))
}

func (b *Bot) handleHistoryCommand(ctx context.Context, session *UserSession) {
	if b.history == nil {
		session.reply(MsgHistoryUnavailable)
		return
	}
	list, err := b.history.List(ctx, session.ownerID())
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(list) == 0 {
		session.reply(MsgHistoryEmpty)
		return
	}
	if len(list) > maxHistoryItems {
		list = list[:maxHistoryItems]
	}
	session._reply(formatHistory(list))
}

const maxHistoryItems = 10

func (b *Bot) handleShowCommand(ctx context.Context, session *UserSession, id string) {
	if b.history == nil {
		session.reply(MsgHistoryUnavailable)
		return
	}
	id = strings.TrimSpace(id)
	if id == "" {
		session.reply(MsgShowUsage)
		return
	}
	entry, err := b.history.Get(ctx, session.ownerID(), id)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if entry == nil {
		session.reply(MsgHistoryNotFound)
		return
	}
	session._reply(entry.Result.OriginalQuery + "\n\n" + formatUnifiedResult(&entry.Result))
}

func (b *Bot) replyFlowError(session *UserSession, err error) {
	switch {
	case errors.Is(err, llm.ErrInvalidRequest):
		session.reply(MsgInvalidInput, err)
	case errors.Is(err, llm.ErrModelUnavailable), errors.Is(err, llm.ErrToolUnavailable):
		log.Warn().Err(err).Int64("userId", session.userId).Msg("analysis unavailable")
		session.reply(MsgServiceBusy)
	case errors.Is(err, llm.ErrModelResponseInvalid):
		log.Warn().Err(err).Int64("userId", session.userId).Msg("invalid model response")
		session.reply(MsgAnalysisFailed, err)
	default:
		session.replyWithError(err)
	}
}

func (b *Bot) startTyping(ctx context.Context, session *UserSession) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	return cancel
}

// requestFromText pulls the first http(s) URL out of text as the listing URL.
// The remaining words form the query, or the URL itself when nothing is left.
func requestFromText(text, image string) router.AnalysisRequest {
	req := router.AnalysisRequest{Image: image}
	var words []string
	for _, w := range strings.Fields(text) {
		if req.ListingURL == "" && (strings.HasPrefix(w, "http://") || strings.HasPrefix(w, "https://")) && flows.ValidateURL(w) == nil {
			req.ListingURL = w
			continue
		}
		words = append(words, w)
	}
	req.Query = strings.Join(words, " ")
	if req.Query == "" {
		req.Query = req.ListingURL
	}
	return req
}

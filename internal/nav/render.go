package nav

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/nitpack/tgfilebotter2/internal/alert"
	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/telegram"
)

// Layout limits. Telegram caps inline keyboards well above this; the
// page size keeps menus readable on phones.
const (
	PageSize = 30
	RowWidth = 10
)

const (
	titleRoot    = "📁 Main Menu"
	textEmpty    = "This folder is empty."
	textNotFound = "Folder not found."
	btnMain      = "🏠 Main Menu"
	btnBack      = "« Back"
	btnNext      = "Next »"
)

// View is the rendered form of one folder page: the files to forward,
// the message text, and the keyboard rows. Building a view has no side
// effects, so rendering the same location twice yields the same view.
type View struct {
	Text    string
	Rows    [][]tgbotapi.InlineKeyboardButton
	Forward []models.FileRef
}

// BuildView resolves path against root and lays out the requested page.
// A missing path produces a not-found view; out-of-range pages clamp to
// the nearest valid page. Files are forwarded only with page zero so
// that paging back and forth does not resend them.
func BuildView(root *models.Folder, path []string, page int) View {
	if root == nil {
		root = &models.Folder{}
	}
	node, ok := root.Walk(path)
	if !ok {
		return View{Text: textNotFound, Rows: mainOnlyRows(path)}
	}

	var view View
	if page == 0 && len(node.Files) > 0 {
		view.Forward = node.Files
	}

	names := node.ChildNames()
	if len(names) == 0 {
		view.Text = breadcrumb(path) + "\n\n" + textEmpty
		view.Rows = mainOnlyRows(path)
		return view
	}
	sortFolderNames(names)

	pages := (len(names) + PageSize - 1) / PageSize
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start := page * PageSize
	end := start + PageSize
	if end > len(names) {
		end = len(names)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, name := range names[start:end] {
		childPath := append(append([]string{}, path...), name)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("📁 "+name, EncodeFolder(childPath)))
		if len(row) == RowWidth {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	var navRow []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(btnBack, EncodePage(page-1, path)))
	}
	if page < pages-1 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(btnNext, EncodePage(page+1, path)))
	}
	if len(path) > 0 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(btnMain, EncodeMain()))
	}
	if len(navRow) > 0 {
		rows = append(rows, navRow)
	}
	view.Rows = rows

	view.Text = breadcrumb(path)
	if pages > 1 {
		view.Text += fmt.Sprintf("\nPage %d/%d", page+1, pages)
	}
	return view
}

// sortFolderNames orders names with numeric collation, so report-2
// sorts before report-10.
func sortFolderNames(names []string) {
	collate.New(language.Und, collate.Numeric).SortStrings(names)
}

func breadcrumb(path []string) string {
	if len(path) == 0 {
		return titleRoot
	}
	return "📁 " + strings.Join(path, " / ")
}

// mainOnlyRows is the keyboard for terminal views: a single return
// button outside the root, nothing at the root itself.
func mainOnlyRows(path []string) [][]tgbotapi.InlineKeyboardButton {
	if len(path) == 0 {
		return nil
	}
	return [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnMain, EncodeMain())),
	}
}

// Renderer delivers views: it forwards the page's files from the
// storage channel, then sends the menu message. Forward failures are
// logged per file and reported once per render as an aggregate alert.
type Renderer struct {
	logger  *zap.Logger
	alerts  alert.Notifier
	metrics *metrics.Metrics
}

func NewRenderer(logger *zap.Logger, alerts alert.Notifier, m *metrics.Metrics) *Renderer {
	return &Renderer{logger: logger, alerts: alerts, metrics: m}
}

// Render builds the view for (path, page) and delivers it to chatID
// through api. channelID is the storage channel files are forwarded
// from. The returned error covers only the menu message; forwards are
// best effort.
func (r *Renderer) Render(api telegram.API, chatID, channelID int64, root *models.Folder, path []string, page int) error {
	view := BuildView(root, path, page)

	failed := 0
	for _, ref := range view.Forward {
		if _, err := api.Send(tgbotapi.NewForward(chatID, channelID, ref.MessageID)); err != nil {
			failed++
			r.metrics.ForwardFailures.Inc()
			r.logger.Warn("failed to forward file",
				zap.Int64("chat_id", chatID),
				zap.Int("message_id", ref.MessageID),
				zap.Error(err))
			continue
		}
		r.metrics.ForwardsTotal.Inc()
	}
	if failed > 0 {
		r.alerts.Notify(alert.CategoryForward,
			fmt.Sprintf("%d of %d file forwards failed for chat %d", failed, len(view.Forward), chatID))
	}

	msg := tgbotapi.NewMessage(chatID, view.Text)
	if len(view.Rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(view.Rows...)
	}
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("send menu message: %w", err)
	}
	return nil
}

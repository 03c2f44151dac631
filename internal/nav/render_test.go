package nav

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/telegram/telegramtest"
)

func btnData(b tgbotapi.InlineKeyboardButton) string {
	if b.CallbackData == nil {
		return ""
	}
	return *b.CallbackData
}

func folderButtons(v View) []tgbotapi.InlineKeyboardButton {
	var out []tgbotapi.InlineKeyboardButton
	for _, row := range v.Rows {
		for _, b := range row {
			if cb, err := Decode(btnData(b)); err == nil && cb.Action == ActionFolder {
				out = append(out, b)
			}
		}
	}
	return out
}

func wideTree(n int) *models.Folder {
	root := &models.Folder{Subfolders: map[string]*models.Folder{}}
	for i := 1; i <= n; i++ {
		root.Subfolders[fmt.Sprintf("sec%d", i)] = &models.Folder{}
	}
	return root
}

func TestBuildViewEmptyRoot(t *testing.T) {
	view := BuildView(&models.Folder{}, nil, 0)

	assert.Contains(t, view.Text, "Main Menu")
	assert.Contains(t, view.Text, textEmpty)
	assert.Empty(t, view.Rows)
	assert.Empty(t, view.Forward)

	// A nil tree renders the same way.
	assert.Equal(t, view, BuildView(nil, nil, 0))
}

func TestBuildViewIsDeterministic(t *testing.T) {
	root := wideTree(45)
	first := BuildView(root, nil, 0)
	second := BuildView(root, nil, 0)
	assert.Equal(t, first, second)
}

func TestBuildViewLeafWithFiles(t *testing.T) {
	root := &models.Folder{
		Subfolders: map[string]*models.Folder{
			"Docs": {Files: []models.FileRef{{MessageID: 1}}},
		},
	}

	view := BuildView(root, []string{"Docs"}, 0)
	require.Len(t, view.Forward, 1)
	assert.Equal(t, 1, view.Forward[0].MessageID)
	assert.Contains(t, view.Text, "Docs")
	assert.Contains(t, view.Text, textEmpty)

	// Terminal view outside the root gets exactly one return button.
	require.Len(t, view.Rows, 1)
	require.Len(t, view.Rows[0], 1)
	assert.Equal(t, "main", btnData(view.Rows[0][0]))

	// Files are only attached on the first page.
	withoutFiles := BuildView(root, []string{"Docs"}, 1)
	assert.Empty(t, withoutFiles.Forward)
}

func TestBuildViewPathNotFound(t *testing.T) {
	view := BuildView(sample(), []string{"Ghost"}, 0)
	assert.Equal(t, textNotFound, view.Text)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "main", btnData(view.Rows[0][0]))
	assert.Empty(t, view.Forward)
}

func sample() *models.Folder {
	return &models.Folder{
		Subfolders: map[string]*models.Folder{
			"Docs":  {Files: []models.FileRef{{MessageID: 1}}},
			"Media": {},
		},
	}
}

func TestBuildViewNumericOrdering(t *testing.T) {
	root := &models.Folder{Subfolders: map[string]*models.Folder{
		"f10": {}, "f2": {}, "f1": {},
	}}

	view := BuildView(root, nil, 0)
	require.Len(t, view.Rows, 1)
	labels := make([]string, 0, 3)
	for _, b := range view.Rows[0] {
		labels = append(labels, b.Text)
	}
	assert.Equal(t, []string{"📁 f1", "📁 f2", "📁 f10"}, labels)
}

func TestBuildViewPaginationAtRoot(t *testing.T) {
	root := wideTree(45)

	first := BuildView(root, nil, 0)
	assert.Len(t, folderButtons(first), PageSize)
	assert.Contains(t, first.Text, "Page 1/2")

	// Root nav row: only the next button, no back, no main.
	navRow := first.Rows[len(first.Rows)-1]
	require.Len(t, navRow, 1)
	assert.Equal(t, "page|1|", btnData(navRow[0]))

	second := BuildView(root, nil, 1)
	assert.Len(t, folderButtons(second), 15)
	assert.Contains(t, second.Text, "Page 2/2")
	navRow = second.Rows[len(second.Rows)-1]
	require.Len(t, navRow, 1)
	assert.Equal(t, "page|0|", btnData(navRow[0]))
}

func TestBuildViewPaginationCoversEveryChildOnce(t *testing.T) {
	root := wideTree(75) // three pages

	seen := map[string]int{}
	for page := 0; page < 3; page++ {
		view := BuildView(root, nil, page)
		for _, b := range folderButtons(view) {
			cb, err := Decode(btnData(b))
			require.NoError(t, err)
			require.Len(t, cb.Path, 1)
			seen[cb.Path[0]]++
		}
	}

	assert.Len(t, seen, 75)
	for name, count := range seen {
		assert.Equal(t, 1, count, "folder %s rendered %d times", name, count)
	}
}

func TestBuildViewClampsPageRange(t *testing.T) {
	root := wideTree(45)

	tooHigh := BuildView(root, nil, 99)
	assert.Equal(t, BuildView(root, nil, 1), tooHigh)

	negative := BuildView(root, nil, -5)
	assert.Equal(t, BuildView(root, nil, 0), negative)
}

func TestBuildViewRowWidth(t *testing.T) {
	root := wideTree(25)

	view := BuildView(root, nil, 0)
	require.Len(t, view.Rows, 3) // 10 + 10 + 5, no nav row on a single page at root
	assert.Len(t, view.Rows[0], RowWidth)
	assert.Len(t, view.Rows[1], RowWidth)
	assert.Len(t, view.Rows[2], 5)
}

func TestBuildViewNavRowInSubfolder(t *testing.T) {
	root := &models.Folder{Subfolders: map[string]*models.Folder{
		"Lib": wideTree(35),
	}}

	view := BuildView(root, []string{"Lib"}, 0)
	navRow := view.Rows[len(view.Rows)-1]
	require.Len(t, navRow, 2)
	assert.Equal(t, "page|1|Lib", btnData(navRow[0]))
	assert.Equal(t, "main", btnData(navRow[1]))

	last := BuildView(root, []string{"Lib"}, 1)
	navRow = last.Rows[len(last.Rows)-1]
	require.Len(t, navRow, 2)
	assert.Equal(t, "page|0|Lib", btnData(navRow[0]))
	assert.Equal(t, "main", btnData(navRow[1]))
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (n *recordingNotifier) Notify(category, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, category+": "+text)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notes))
	copy(out, n.notes)
	return out
}

func TestRenderForwardsFilesThenSendsMenu(t *testing.T) {
	fake := telegramtest.NewFake()
	notifier := &recordingNotifier{}
	r := NewRenderer(zap.NewNop(), notifier, metrics.New(nil))

	root := &models.Folder{
		Subfolders: map[string]*models.Folder{
			"Docs": {Files: []models.FileRef{{MessageID: 42}}},
		},
	}

	err := r.Render(fake, 5, -100123, root, []string{"Docs"}, 0)
	require.NoError(t, err)

	forwards := fake.Forwards()
	require.Len(t, forwards, 1)
	assert.Equal(t, int64(5), forwards[0].ChatID)
	assert.Equal(t, int64(-100123), forwards[0].FromChatID)
	assert.Equal(t, 42, forwards[0].MessageID)

	messages := fake.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, int64(5), messages[0].ChatID)
	markup, ok := messages[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "main", btnData(markup.InlineKeyboard[0][0]))

	assert.Empty(t, notifier.all())
}

func TestRenderAggregatesForwardFailures(t *testing.T) {
	fake := telegramtest.NewFake()
	fake.SetForwardErr(errors.New("chat not found"))
	notifier := &recordingNotifier{}
	m := metrics.New(nil)
	r := NewRenderer(zap.NewNop(), notifier, m)

	root := &models.Folder{
		Subfolders: map[string]*models.Folder{
			"Docs": {Files: []models.FileRef{{MessageID: 1}, {MessageID: 2}}},
		},
	}

	err := r.Render(fake, 5, -1, root, []string{"Docs"}, 0)
	require.NoError(t, err)

	// Menu still goes out, and the failures collapse into one alert.
	require.Len(t, fake.Messages(), 1)
	require.Len(t, notifier.all(), 1)
	assert.Contains(t, notifier.all()[0], "2 of 2")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ForwardFailures))
}

func TestRenderReturnsMenuSendError(t *testing.T) {
	fake := telegramtest.NewFake()
	fake.SetSendErr(errors.New("blocked by user"))
	r := NewRenderer(zap.NewNop(), &recordingNotifier{}, metrics.New(nil))

	err := r.Render(fake, 5, -1, &models.Folder{}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send menu message")
}

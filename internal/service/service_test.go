package service

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/embedding"
	"github.com/bull/pdfchat-server/internal/ingest"
	"github.com/bull/pdfchat-server/internal/query"
	"github.com/bull/pdfchat-server/internal/storage"
)

// pageExtractor treats the upload as UTF-8 text with pages separated by form feeds.
type pageExtractor struct{}

func (pageExtractor) ExtractPages(_ context.Context, data []byte) ([]string, error) {
	if !strings.HasPrefix(string(data), "PDF:") {
		return nil, ingest.ErrInvalidPDF
	}
	return strings.Split(strings.TrimPrefix(string(data), "PDF:"), "\f"), nil
}

type countingSynthesizer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSynthesizer) Synthesize(_ context.Context, _ string, passages []string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return "ANSWER: " + passages[0], nil
}

type fixture struct {
	svc       *Service
	synth     *countingSynthesizer
	uploadDir string
	indexDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		synth:     &countingSynthesizer{},
		uploadDir: filepath.Join(root, "uploads"),
		indexDir:  filepath.Join(root, "vectorDB"),
	}

	emb := embedding.NewHashing(64)
	store, err := storage.NewLocalStore(storage.LocalConfig{
		UploadDir: f.uploadDir,
		IndexDir:  f.indexDir,
	}, emb)
	require.NoError(t, err)

	splitter := ingest.NewSplitter(ingest.WithChunkSize(60), ingest.WithChunkOverlap(10))
	f.svc = New(store,
		ingest.NewPipeline(pageExtractor{}, splitter),
		query.NewPipeline(emb, f.synth, 3),
		nil, nil)
	return f
}

func pdf(pages ...string) []byte {
	return []byte("PDF:" + strings.Join(pages, "\f"))
}

func TestDocumentID(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		err      error
	}{
		{"report.pdf", "report", nil},
		{"Report.PDF", "Report", nil},
		{"my.annual.report.pdf", "my.annual.report", nil},
		{"dir/sub/report.pdf", "report", nil},
		{`C:\Users\me\report.pdf`, "report", nil},
		{"notes.txt", "", ErrUnsupportedFile},
		{"pdf", "", ErrUnsupportedFile},
		{"", "", ErrUnsupportedFile},
		{".pdf", "", ErrInvalidIdentifier},
		{"..pdf", "", ErrInvalidIdentifier},
		{".hidden.pdf", "", ErrInvalidIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DocumentID(tt.filename)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadAndAsk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, "energy.pdf", pdf("Solar panels turn sunlight into power.", "Wind turbines spin in the breeze."))
	require.NoError(t, err)
	assert.Equal(t, "energy", res.DocumentID)
	assert.Equal(t, MessageUploaded, res.Message)
	assert.Equal(t, 2, res.Pages)
	assert.FileExists(t, filepath.Join(f.uploadDir, "energy.pdf"))

	ans, err := f.svc.Ask(ctx, "energy", "wind turbines")
	require.NoError(t, err)
	assert.Equal(t, "energy", ans.DocumentID)
	assert.Contains(t, ans.Answer, "Wind turbines")
	assert.Equal(t, 1, f.synth.calls)
}

// Uploading the same name twice grows one index.
func TestUpload_SameNameAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Upload(ctx, "doc.pdf", pdf("alpha page text"))
	require.NoError(t, err)
	second, err := f.svc.Upload(ctx, "doc.pdf", pdf("beta page text"))
	require.NoError(t, err)
	assert.Equal(t, first.Total+second.Added, second.Total)

	ids, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, ids)

	ans, err := f.svc.Ask(ctx, "doc", "alpha")
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "alpha")
	ans, err = f.svc.Ask(ctx, "doc", "beta")
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "beta")
}

// A document without text is rejected and no index appears.
func TestUpload_NoTextCreatesNoIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "scan.pdf", pdf("", "   "))
	require.ErrorIs(t, err, ErrNoExtractableText)
	assert.NoDirExists(t, filepath.Join(f.indexDir, "scan"))

	ids, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	_, err = f.svc.Upload(ctx, "broken.pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, ErrInvalidPDF)

	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the pdf-named upload was staged")
}

func TestAsk_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, "missing", "question?")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Ask(ctx, "doc", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Ask(ctx, "", "question?")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Ask(ctx, "../etc", "question?")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Delete(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Upload(ctx, "doc.pdf", pdf("some text"))
	require.NoError(t, err)
	msg, err := f.svc.Delete(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "Document 'doc' deleted successfully", msg)

	_, err = f.svc.Ask(ctx, "doc", "text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		_, err := f.svc.Upload(ctx, name, pdf("text for "+name))
		require.NoError(t, err)
	}
	// Two staged files, three indexes.
	require.NoError(t, os.Remove(filepath.Join(f.uploadDir, "c.pdf")))

	res, err := f.svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ClearResult{Message: MessageCleared, DeletedFiles: 2, DeletedIndexes: 3}, res)

	ids, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	res, err = f.svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedFiles)
	assert.Zero(t, res.DeletedIndexes)
}

func TestConcurrentUploadsSameName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	totals := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Upload(ctx, "shared.pdf", pdf(strings.Repeat("word ", i+1)))
			errs <- err
			if err == nil {
				totals <- res.Total
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	close(totals)
	for err := range errs {
		require.NoError(t, err)
	}

	// Each upload is one chunk; serialized writers see 1..8 entries, none lost.
	var seen []int
	for total := range totals {
		seen = append(seen, total)
	}
	sort.Ints(seen)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, seen)

	ids, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, ids)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Health(context.Background()))

	require.NoError(t, os.RemoveAll(f.uploadDir))
	assert.Error(t, f.svc.Health(context.Background()))
}

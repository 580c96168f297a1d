package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treewskyblue/Medvise/internal/chromemdb"
	"github.com/treewskyblue/Medvise/internal/chunker"
	"github.com/treewskyblue/Medvise/internal/embedding"
	"github.com/treewskyblue/Medvise/internal/guideline"
	"github.com/treewskyblue/Medvise/internal/models"
	"github.com/treewskyblue/Medvise/internal/orchestrator"
	"github.com/treewskyblue/Medvise/internal/parser"
	"github.com/treewskyblue/Medvise/internal/prediction"
)

type fakeAsker struct {
	resp orchestrator.Response
	err  error
	got  orchestrator.Request
}

func (f *fakeAsker) Ask(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error) {
	f.got = req
	return f.resp, f.err
}

func newTestServer(t *testing.T, asker Asker) (*httptest.Server, *guideline.Store, *chromemdb.Index) {
	t.Helper()
	idx, err := chromemdb.NewInMemory("test", embedding.NewHashing(64).Embed, zerolog.Nop())
	require.NoError(t, err)
	loader := parser.NewLoader(chunker.New(200, 40), zerolog.Nop())
	store, err := guideline.NewStore(guideline.Options{Dir: filepath.Join(t.TempDir(), "g")}, loader, idx, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(asker, store, 1<<20, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, store, idx
}

func upload(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/guidelines", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func Test_Health(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, map[string]any{"status": "healthy"}, decode(t, resp))
}

func Test_Chat(t *testing.T) {
	asker := &fakeAsker{resp: orchestrator.Response{
		TurnID: "t-1",
		Answer: "Values received.\n\n**TPN prescription plan**\n- Glucose supply: 10.12 g",
		Prediction: &prediction.Result{Quantities: []prediction.Quantity{
			{Key: "TPNCALCULATEDGLUCOSE", Name: "Glucose supply", Value: 10.123, Unit: "g"},
		}},
	}}
	srv, _, _ := newTestServer(t, asker)

	body := `{"message": "glucose 85", "history": [{"type": "user", "content": "hi"}, {"type": "bot", "content": "hello"}]}`
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, "glucose 85", asker.got.Message)
	require.Len(t, asker.got.History, 2)
	assert.Equal(t, "bot", asker.got.History[1].Type)

	assert.Equal(t, map[string]any{"Glucose supply": 10.12}, out["prediction"])
	assert.Equal(t, []any{}, out["references"])
	assert.Contains(t, out["response_html"], "<strong>TPN prescription plan</strong>")
	assert.NotContains(t, out, "error")
}

func Test_Chat_Failure(t *testing.T) {
	asker := &fakeAsker{
		resp: orchestrator.Response{Answer: models.GenericApology, Error: "boom", Failed: true},
		err:  assert.AnError,
	}
	srv, _, _ := newTestServer(t, asker)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"message": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, models.GenericApology, out["response"])
	assert.Equal(t, "boom", out["error"])
}

func Test_Chat_BadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAsker{})

	for _, body := range []string{`not json`, `{"message": "  "}`} {
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func Test_Guidelines_Lifecycle(t *testing.T) {
	srv, store, idx := newTestServer(t, &fakeAsker{})
	ctx := context.Background()

	resp := upload(t, srv.URL, "tpn (v2).txt", "Glucose infusion starts at 4 mg/kg/min.")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tpn v2.txt", decode(t, resp)["filename"])
	assert.Equal(t, 1, idx.Count(ctx))

	resp, err := http.Get(srv.URL + "/api/guidelines")
	require.NoError(t, err)
	list := decode(t, resp)["guidelines"].([]any)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, "tpn v2.txt", entry["filename"])
	assert.Equal(t, ".txt", entry["extension"])
	assert.Equal(t, string(models.MediaTypeText), entry["media_type"])

	resp, err = http.Get(srv.URL + "/api/guidelines/tpn%20v2.txt")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Glucose infusion starts at 4 mg/kg/min.", string(raw))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/guidelines/tpn%20v2.txt", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Zero(t, idx.Count(ctx))

	docs, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, docs)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/guidelines/tpn%20v2.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func Test_Upload_Errors(t *testing.T) {
	srv, store, _ := newTestServer(t, &fakeAsker{})

	resp := upload(t, srv.URL, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, srv.URL, "tool.exe", "MZ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, srv.URL, "scan.pdf", "not really a pdf")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()

	// the failed upload stays on disk until the next reindex
	_, err := os.Stat(filepath.Join(store.Dir(), "scan.pdf"))
	assert.NoError(t, err)
}

func Test_CORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAsker{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/chat", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
}

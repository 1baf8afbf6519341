package testutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	gin.SetMode(gin.TestMode)
}

const (
	PathRegister      = "/api/agent/register"
	PathHeartbeat     = "/api/agent/heartbeat"
	PathUpdateConfig  = "/api/agent/updateconfig"
	PathSyncLogs      = "/api/agent/synclogs"
	PathSyncModels    = "/api/agent/syncmodels"
	PathCommandResult = "/api/agent/commandresult"
	PathUploadModel   = "/api/agent/uploadmodelfile"
)

// RecordedRequest is one request seen by the FakeController.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	// ContentLength is the declared request length, -1 when unknown.
	ContentLength int64
}

// JSON decodes the recorded body into a generic object.
func (r RecordedRequest) JSON(t *testing.T) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(r.Body, &out))
	return out
}

// Upload is a parsed multipart upload.
type Upload struct {
	Path      string
	ModelName string
	FileName  string
	FileType  string
	Content   []byte
}

// FakeController is an in-process controller that records every request and
// answers with scripted responses. Unscripted endpoints answer
// {"success": true}.
type FakeController struct {
	URL string

	mu        sync.Mutex
	requests  []RecordedRequest
	uploads   []Upload
	pcID      int
	down      map[string]bool
	overrides map[string]scripted
	commands  []map[string]any
	files     map[string][]byte
}

type scripted struct {
	status int
	body   any
}

func NewFakeController(t *testing.T) *FakeController {
	t.Helper()
	f := &FakeController{
		pcID:      42,
		down:      map[string]bool{},
		overrides: map[string]scripted{},
		files:     map[string][]byte{},
	}

	engine := gin.New()
	engine.Any("/*path", f.handle)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// SetPCID changes the id handed out by the register endpoint.
func (f *FakeController) SetPCID(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcID = id
}

// SetDown makes path answer 503 until cleared.
func (f *FakeController) SetDown(path string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[path] = down
}

// SetResponse scripts a fixed status and JSON (or raw string) body for path.
func (f *FakeController) SetResponse(path string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = scripted{status: status, body: body}
}

// ClearResponse removes a scripted response.
func (f *FakeController) ClearResponse(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, path)
}

// QueueCommand adds a pending command delivered by the next heartbeat.
func (f *FakeController) QueueCommand(id int, commandType, commandData string) {
	f.QueueRaw(map[string]any{
		"commandId":   id,
		"commandType": commandType,
		"commandData": commandData,
	})
}

// QueueRaw adds an arbitrary command record, e.g. one missing its id.
func (f *FakeController) QueueRaw(cmd map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

// ServeFile makes path downloadable with the given content.
func (f *FakeController) ServeFile(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

// Requests returns the recorded requests for path, or all when path is "".
func (f *FakeController) Requests(path string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Filter(f.requests, func(r RecordedRequest, _ int) bool {
		return path == "" || r.Path == path
	})
}

// Count returns the number of requests recorded for path.
func (f *FakeController) Count(path string) int {
	return len(f.Requests(path))
}

// Uploads returns all parsed multipart uploads.
func (f *FakeController) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

// Reset forgets recorded requests and uploads.
func (f *FakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
	f.uploads = nil
}

func (f *FakeController) handle(c *gin.Context) {
	path := c.Request.URL.Path
	body, _ := io.ReadAll(c.Request.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, RecordedRequest{
		Method: c.Request.Method,
		Path:   path,
		Header: c.Request.Header.Clone(),
		Body:   body,

		ContentLength: c.Request.ContentLength,
	})

	if f.down[path] {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "down"})
		return
	}
	if s, ok := f.overrides[path]; ok {
		if raw, isRaw := s.body.(string); isRaw {
			c.String(s.status, raw)
			return
		}
		c.JSON(s.status, s.body)
		return
	}
	if content, ok := f.files[path]; ok && c.Request.Method == http.MethodGet {
		c.Data(http.StatusOK, "application/octet-stream", content)
		return
	}

	switch {
	case path == PathRegister:
		c.JSON(http.StatusOK, gin.H{"success": true, "pcId": f.pcID})
	case path == PathHeartbeat:
		resp := gin.H{"success": true, "hasPendingCommands": len(f.commands) > 0}
		if len(f.commands) > 0 {
			resp["commands"] = f.commands
			f.commands = nil
		}
		c.JSON(http.StatusOK, resp)
	case strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data"):
		up, err := parseUpload(path, c.GetHeader("Content-Type"), body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		f.uploads = append(f.uploads, up)
		c.JSON(http.StatusOK, gin.H{"success": true})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func parseUpload(path, contentType string, body []byte) (Upload, error) {
	up := Upload{Path: path}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return up, err
	}
	r := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			return up, nil
		}
		if err != nil {
			return up, err
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return up, err
		}
		switch part.FormName() {
		case "modelName":
			up.ModelName = string(data)
		case "file":
			up.FileName = part.FileName()
			up.FileType = part.Header.Get("Content-Type")
			up.Content = data
		}
	}
}

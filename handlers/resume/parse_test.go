package resume

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	calls int
}

func (s *stubParser) Parse(ctx context.Context, content []byte) (*model.ResumeProfile, error) {
	s.calls++
	return &model.ResumeProfile{FullName: "Jane"}, nil
}

func upload(t *testing.T, handler *ResumeHandler, fileName string, content []byte) *http.Response {
	t.Helper()
	app := fiber.New()
	app.Post("/resume/parse", handler.ParseResume)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/resume/parse", &body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestParseResume_NotConfigured(t *testing.T) {
	resp := upload(t, NewResumeHandler(nil, nil), "cv.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestParseResume_RejectsBadUploads(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  []byte
	}{
		{"missing file", "", nil},
		{"wrong extension", "cv.docx", []byte("PK\x03\x04")},
		{"not a pdf", "cv.pdf", []byte("just text pretending")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &stubParser{}
			resp := upload(t, NewResumeHandler(parser, nil), tt.fileName, tt.content)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Zero(t, parser.calls)
		})
	}
}

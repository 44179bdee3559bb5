// Package pipeline converts a user-provided image input into one multipart
// POST against the classification endpoint and interprets the response.
package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/imaging"
)

type submissionKind int

const (
	kindFile submissionKind = iota
	kindURL
	kindBase64
)

// Submission is exactly one of a file, a remote URL, or a data:image string.
type Submission struct {
	kind   submissionKind
	name   string
	mime   string
	data   []byte
	url    string
	base64 string
}

// FileSubmission wraps raw image bytes picked or dropped by the user.
func FileSubmission(name, mimeType string, data []byte) Submission {
	return Submission{kind: kindFile, name: name, mime: mimeType, data: data}
}

// URLSubmission wraps a remote image URL.
func URLSubmission(rawURL string) Submission {
	return Submission{kind: kindURL, url: strings.TrimSpace(rawURL)}
}

// Base64Submission wraps an embedded data:image string.
func Base64Submission(data string) Submission {
	return Submission{kind: kindBase64, base64: strings.TrimSpace(data)}
}

// Pipeline submits images for classification. It performs no retries and
// sets no timeout of its own; cancel the context to abandon a hung call.
type Pipeline struct {
	endpoint     string
	client       *http.Client
	fixExtension bool
	logger       *zap.Logger
}

// New builds a pipeline posting to endpoint. fixExtension enables the
// ".jpg" appending heuristic for extensionless URLs.
func New(endpoint string, client *http.Client, fixExtension bool, logger *zap.Logger) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pipeline{
		endpoint:     endpoint,
		client:       client,
		fixExtension: fixExtension,
		logger:       logger.Named("pipeline"),
	}
}

// Submit validates the submission, posts it, and returns the verdict.
// Invalid input fails before any network I/O.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*classifier.Verdict, error) {
	field, value, err := p.normalize(sub)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeForm(field, value, sub)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("classification request failed", zap.Error(err))
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	return decodeResponse(resp)
}

// normalize validates the input and resolves the form field it travels in.
func (p *Pipeline) normalize(sub Submission) (field, value string, err error) {
	switch sub.kind {
	case kindFile:
		if err := imaging.ValidateMIME(sub.mime); err != nil {
			return "", "", err
		}
		return "file", "", nil
	case kindBase64:
		if err := imaging.ValidateDataImage(sub.base64); err != nil {
			return "", "", err
		}
		return "base64", sub.base64, nil
	case kindURL:
		if imaging.IsDataImage(sub.url) {
			// The single text input accepts either form.
			return "base64", sub.url, nil
		}
		if err := imaging.ValidateURL(sub.url); err != nil {
			return "", "", err
		}
		value := sub.url
		if p.fixExtension {
			value = imaging.EnsureImageExtension(value)
		}
		return "url", value, nil
	default:
		return "", "", &imaging.ValidationError{Message: "no image provided"}
	}
}

func encodeForm(field, value string, sub Submission) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if field == "file" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, sub.name))
		header.Set("Content-Type", sub.mime)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(sub.data); err != nil {
			return nil, "", err
		}
	} else {
		if err := writer.WriteField(field, value); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func decodeResponse(resp *http.Response) (*classifier.Verdict, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "classification failed"}
		var payload struct {
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		}
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		return nil, apiErr
	}

	var verdict classifier.Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "malformed response from classification endpoint"}
	}
	return &verdict, nil
}

// Source returns the string used to preview the submission and reference it
// from history: the URL or data string as given, or a data URI built from
// the file bytes.
func (s Submission) Source() string {
	switch s.kind {
	case kindURL:
		return s.url
	case kindBase64:
		return s.base64
	default:
		return imaging.DataImagePrefix + "/" + extFromMIME(s.mime) + ";base64," + encodeBase64(s.data)
	}
}

func extFromMIME(mimeType string) string {
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

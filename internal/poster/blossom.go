// Package poster uploads a finished montage video to a content-addressed blob
// host and announces it on the network.
package poster

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var bareURLPattern = regexp.MustCompile(`https?://\S+`)

// Uploader tries each (server x path x strategy) combination in order until
// one yields a resolvable absolute URL. Blob hosts disagree on their upload
// surface, hence the strategy chain.
type Uploader struct {
	Servers []string
	Paths   []string
	Key     string // hex private key for NIP-98 signing
	Debug   bool
	Log     *log.Logger
	Client  *http.Client
}

type uploadAttempt struct {
	url      string
	strategy string
	do       func(ctx context.Context) (*http.Response, error)
}

func (u *Uploader) client() *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return http.DefaultClient
}

func (u *Uploader) logger() *log.Logger {
	if u.Log != nil {
		return u.Log
	}
	return log.New(io.Discard, "", 0)
}

// UploadResult mirrors the fields persisted in the publish artifact.
type UploadResult struct {
	Server   string
	URL      string
	Tags     [][]string
	Strategy string
}

// Upload pushes the file to the first accepting combination. Exhausting every
// combination is a hard failure.
func (u *Uploader) Upload(ctx context.Context, filePath string) (*UploadResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("not a file")
	}
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	fileName := filepath.Base(filePath)
	sum := sha256.Sum256(fileBytes)
	fileHash := hex.EncodeToString(sum[:])

	for _, server := range u.Servers {
		base := server
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		var attempts []uploadAttempt
		for _, p := range u.Paths {
			endpoint := base + p
			attempts = append(attempts,
				u.rawBytesAttempt(endpoint, fileName, fileBytes),
				u.multipartAttempt(endpoint, fileName, fileBytes),
			)
		}
		attempts = append(attempts, u.putHashAttempt(base+fileHash, fileName, fileBytes))

		for _, attempt := range attempts {
			resp, err := attempt.do(ctx)
			if err != nil {
				if u.Debug {
					u.logger().Printf("%s upload error at %s: %v", attempt.strategy, attempt.url, err)
				}
				continue
			}
			out := u.parseUploadResponse(resp, attempt)
			if out != nil {
				out.Server = server
				out.Strategy = attempt.strategy
				return out, nil
			}
		}
	}
	return nil, errors.New("all blob uploads failed")
}

// rawBytesAttempt posts the raw payload with a token that embeds its hash.
func (u *Uploader) rawBytesAttempt(endpoint, fileName string, fileBytes []byte) uploadAttempt {
	return uploadAttempt{url: endpoint, strategy: "raw-bytes", do: func(ctx context.Context) (*http.Response, error) {
		token, err := AuthToken(u.Key, endpoint, http.MethodPost, fileBytes)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(fileBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Accept", "application/json,text/plain,application/octet-stream,*/*")
		req.Header.Set("X-Filename", url.QueryEscape(fileName))
		return u.client().Do(req)
	}}
}

// multipartAttempt wraps the payload in a form body; the token carries no
// payload hash since the form encoding differs from the file bytes.
func (u *Uploader) multipartAttempt(endpoint, fileName string, fileBytes []byte) uploadAttempt {
	return uploadAttempt{url: endpoint, strategy: "multipart", do: func(ctx context.Context) (*http.Response, error) {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		part, err := form.CreateFormFile("file", fileName)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(fileBytes); err != nil {
			return nil, err
		}
		_ = form.WriteField("filename", fileName)
		_ = form.WriteField("m", "video/mp4")
		if err := form.Close(); err != nil {
			return nil, err
		}

		token, err := AuthToken(u.Key, endpoint, http.MethodPost, nil)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Accept", "application/json,text/plain,*/*")
		return u.client().Do(req)
	}}
}

// putHashAttempt addresses the blob by its own hash, for hosts that accept
// PUT /<sha256>.
func (u *Uploader) putHashAttempt(endpoint, fileName string, fileBytes []byte) uploadAttempt {
	return uploadAttempt{url: endpoint, strategy: "put-hash", do: func(ctx context.Context) (*http.Response, error) {
		token, err := AuthToken(u.Key, endpoint, http.MethodPut, fileBytes)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(fileBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Accept", "application/json,text/plain,*/*")
		req.Header.Set("X-Filename", url.QueryEscape(fileName))
		return u.client().Do(req)
	}}
}

// parseUploadResponse resolves an absolute URL from a JSON body field, a
// Location header, or a bare URL in a text body. A response with no resolvable
// URL is treated as a miss, not an error.
func (u *Uploader) parseUploadResponse(resp *http.Response, attempt uploadAttempt) *UploadResult {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if u.Debug {
			snippet := string(body)
			if len(snippet) > 300 {
				snippet = snippet[:300]
			}
			u.logger().Printf("upload non-ok status=%d url=%s mode=%s body=%s", resp.StatusCode, attempt.url, attempt.strategy, snippet)
		}
		return nil
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "application/json") {
		var j struct {
			URL  string     `json:"url"`
			Tags [][]string `json:"tags"`
		}
		if err := json.Unmarshal(body, &j); err == nil {
			resolved := j.URL
			if resolved == "" && len(j.Tags) > 0 && len(j.Tags[0]) > 1 && j.Tags[0][0] == "url" {
				resolved = j.Tags[0][1]
			}
			if resolved != "" {
				return &UploadResult{URL: resolved, Tags: j.Tags}
			}
		}
	}
	if loc := resp.Header.Get("Location"); strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return &UploadResult{URL: loc}
	}
	if m := bareURLPattern.FindString(string(body)); m != "" {
		return &UploadResult{URL: m}
	}
	return nil
}

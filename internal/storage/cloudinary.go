package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	APIBase   string
}

// Cloudinary performs signed uploads against the REST upload API with
// resource_type auto.
type Cloudinary struct {
	cfg    CloudinaryConfig
	client *http.Client
	now    func() time.Time
}

func NewCloudinary(cfg CloudinaryConfig, client *http.Client) *Cloudinary {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.cloudinary.com/v1_1"
	}
	return &Cloudinary{cfg: cfg, client: client, now: time.Now}
}

func (c *Cloudinary) Upload(ctx context.Context, f File) (string, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := map[string]string{
		"api_key":   c.cfg.APIKey,
		"timestamp": timestamp,
		"signature": c.sign(map[string]string{"folder": c.cfg.Folder, "timestamp": timestamp}),
	}
	if c.cfg.Folder != "" {
		fields["folder"] = c.cfg.Folder
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	part, err := w.CreateFormFile("file", f.Name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.cfg.APIBase, "/") + "/" + c.cfg.CloudName + "/auto/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("cloudinary read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
			return "", fmt.Errorf("cloudinary upload failed: status=%d message=%s", resp.StatusCode, msg.String())
		}
		return "", fmt.Errorf("cloudinary upload failed: status=%d", resp.StatusCode)
	}

	secureURL := gjson.GetBytes(raw, "secure_url")
	if !secureURL.Exists() || secureURL.String() == "" {
		return "", fmt.Errorf("cloudinary upload: response has no secure_url")
	}
	return secureURL.String(), nil
}

// sign builds the SHA-1 request signature: non-empty params sorted by
// name, joined as k=v with &, followed by the API secret.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.cfg.APISecret))
	return hex.EncodeToString(sum[:])
}

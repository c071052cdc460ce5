package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"studio/internal/domain"
	"studio/internal/pipeline"
)

type videoPredictRequest struct {
	Instances  []videoInstance  `json:"instances"`
	Parameters *videoParameters `json:"parameters,omitempty"`
}

type videoInstance struct {
	Prompt string      `json:"prompt,omitempty"`
	Image  *videoImage `json:"image,omitempty"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type videoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

const animatePrompt = "Animate this product photograph into a short, smooth commercial clip. Subtle camera motion, no scene changes."

// SubmitVideoJob starts a long-running video synthesis operation from the
// item's photo and returns the operation name as the poll handle.
func (c *Client) SubmitVideoJob(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
	mime := photo.MIME
	if mime == "" {
		mime = "image/png"
	}
	payload := videoPredictRequest{
		Instances: []videoInstance{{
			Prompt: animatePrompt,
			Image: &videoImage{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(photo.Data),
				MimeType:           mime,
			},
		}},
		Parameters: &videoParameters{AspectRatio: string(aspect)},
	}

	var op videoOperation
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, path, payload, &op); err != nil {
		return "", err
	}
	if strings.TrimSpace(op.Name) == "" {
		return "", fmt.Errorf("malformed model response: operation name missing")
	}
	c.logger.Debug().Str("operation", op.Name).Msg("genai: video job submitted")
	return op.Name, nil
}

// PollVideoJob checks the operation once. A done operation carries either
// a retrievable video reference or a terminal failure reason.
func (c *Client) PollVideoJob(ctx context.Context, handle string) (pipeline.VideoJobStatus, error) {
	key := c.key()
	if key == "" {
		return pipeline.VideoJobStatus{}, domain.ErrCredentialMissing
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(handle, "/"), nil)
	if err != nil {
		return pipeline.VideoJobStatus{}, fmt.Errorf("create request: %w", err)
	}
	authorize(req, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.VideoJobStatus{}, fmt.Errorf("poll operation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return pipeline.VideoJobStatus{}, c.decodeError(resp)
	}

	var op videoOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return pipeline.VideoJobStatus{}, fmt.Errorf("malformed model response: %v", err)
	}
	if !op.Done {
		return pipeline.VideoJobStatus{}, nil
	}
	if op.Error != nil {
		return pipeline.VideoJobStatus{Done: true, FailureReason: op.Error.Message}, nil
	}
	if op.Response != nil {
		samples := op.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) > 0 && samples[0].Video.URI != "" {
			return pipeline.VideoJobStatus{Done: true, VideoRef: samples[0].Video.URI}, nil
		}
	}
	return pipeline.VideoJobStatus{Done: true, FailureReason: "model returned no video"}, nil
}

// FetchVideo downloads the finished video content.
func (c *Client) FetchVideo(ctx context.Context, videoRef string) (domain.Media, error) {
	key := c.key()
	if key == "" {
		return domain.Media{}, domain.ErrCredentialMissing
	}
	target := videoRef
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Media{}, fmt.Errorf("create download request: %w", err)
	}
	authorize(req, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Media{}, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return domain.Media{}, fmt.Errorf("download video status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Media{}, fmt.Errorf("read video: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return domain.Media{Data: blob, MIME: mime}, nil
}

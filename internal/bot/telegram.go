package bot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/rs/zerolog/log"
)

// maxPhotoBytes matches the HTTP API's request body limit.
const maxPhotoBytes = 10 << 20

// httpClient is reused for file downloads
var httpClient = resty.New().SetDebug(false).SetTimeout(30 * time.Second)

func downloadFileID(
	ctx context.Context,
	getFileDirectURL func(fileId string) (string, error),
	fileID string,
) ([]byte, error) {
	log.Info().Str("fileID", fileID).Msg("downloading file id")
	url, err := getFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file URL: %w", err)
	}
	res, err := httpClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("request failed: %v", res.Status())
	}
	if len(res.Body()) > maxPhotoBytes {
		return nil, fmt.Errorf("file too large: %d bytes", len(res.Body()))
	}
	return res.Body(), nil
}

// photoDataURI downloads the largest size of a photo and encodes it as a
// data URI.
func photoDataURI(
	ctx context.Context,
	getFileDirectURL func(fileId string) (string, error),
	photo []tgbotapi.PhotoSize,
) (string, error) {
	if len(photo) == 0 {
		return "", fmt.Errorf("message has no photo")
	}
	largest := photo[len(photo)-1]
	data, err := downloadFileID(ctx, getFileDirectURL, largest.FileID)
	if err != nil {
		return "", err
	}
	media := llm.Media{MIMEType: http.DetectContentType(data), Data: data}
	return media.DataURI(), nil
}

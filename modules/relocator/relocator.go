package relocator

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/metrics"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/common/storage"
)

const mib = 1 << 20

// 카테고리별 최대 파일 크기
var maxFileSize = map[model.Kind]int64{
	model.KindImage: 10 * mib,
	model.KindVideo: 100 * mib,
	model.KindAudio: 20 * mib,
}

var allowedContentTypes = map[model.Kind][]string{
	model.KindImage: {"image/png", "image/jpeg", "image/jpg", "image/webp", "image/gif"},
	model.KindVideo: {"video/mp4", "video/webm", "video/quicktime"},
	model.KindAudio: {"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg"},
}

var defaultContentType = map[model.Kind]string{
	model.KindImage: "image/png",
	model.KindVideo: "video/mp4",
	model.KindAudio: "audio/mpeg",
}

var defaultExtension = map[model.Kind]string{
	model.KindImage: "png",
	model.KindVideo: "mp4",
	model.KindAudio: "mp3",
}

// image/webp is not listed; webp payloads keep their content type but get the category extension.
var extensionByContentType = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/gif":       "gif",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
	"audio/mpeg":      "mp3",
	"audio/mp3":       "mp3",
	"audio/wav":       "wav",
	"audio/ogg":       "ogg",
}

// Request - 임시 URL의 파일을 영구 스토리지로 옮기는 요청
type Request struct {
	SourceURL string
	Category  model.Kind
	FileName  string
	Path      string
}

// Relocator copies vendor-hosted assets into permanent object storage.
type Relocator struct {
	store      storage.ObjectStore
	httpClient *http.Client
	now        func() time.Time
	log        zerolog.Logger
}

func New(store storage.ObjectStore, log zerolog.Logger) *Relocator {
	return &Relocator{
		store:      store,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		now:        time.Now,
		log:        log.With().Str("component", "relocator").Logger(),
	}
}

// Relocate downloads req.SourceURL and uploads the bytes under a new key.
// Every call without an explicit FileName mints a new time-stamped key.
func (r *Relocator) Relocate(ctx context.Context, req Request) (*model.StoredAsset, error) {
	maxSize, ok := maxFileSize[req.Category]
	if !ok {
		return nil, apperr.Validation("unsupported asset type %q", req.Category)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		return nil, apperr.Validation("invalid source URL: %v", err)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperr.FetchError{URL: req.SourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.FetchError{URL: req.SourceURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType[req.Category]
	}
	if !isAllowed(contentType, req.Category) {
		return nil, apperr.Validation("Invalid content type: %s for type: %s", contentType, req.Category)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > maxSize {
			return nil, tooLarge(size, maxSize, req.Category)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, &apperr.FetchError{URL: req.SourceURL, Err: err}
	}
	if int64(len(body)) > maxSize {
		return nil, tooLarge(int64(len(body)), maxSize, req.Category)
	}

	key, err := r.buildKey(req, contentType)
	if err != nil {
		return nil, err
	}

	publicURL, err := r.store.Put(ctx, key, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload %s to %s storage: %w", key, r.store.Backend(), err)
	}
	metrics.RecordRelocation(string(req.Category), int64(len(body)))

	r.log.Info().Str("key", key).Int("size", len(body)).Str("content_type", contentType).Msg("asset relocated")
	return &model.StoredAsset{
		Key:         key,
		PublicURL:   publicURL,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
	}, nil
}

// Delete removes a stored object. key must be a relative object key.
func (r *Relocator) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.Validation("key is required")
	}
	if strings.HasPrefix(key, "/") {
		return apperr.Validation("key must be relative")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return apperr.Validation("key must not contain empty, '.' or '..' segments")
		}
	}

	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s from %s storage: %w", key, r.store.Backend(), err)
	}
	r.log.Info().Str("key", key).Msg("asset deleted")
	return nil
}

// buildKey - 경로 prefix(기본: 카테고리 폴더) + 파일명(기본: 타임스탬프)
func (r *Relocator) buildKey(req Request, contentType string) (string, error) {
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = fmt.Sprintf("%s-%d", req.Category, r.now().UnixMilli())
	}
	if !strings.Contains(fileName, ".") {
		fileName += "." + ExtensionFor(contentType, req.Category)
	}

	prefix := strings.Trim(strings.TrimSpace(req.Path), "/")
	if prefix == "" {
		prefix = DefaultFolder(req.Category)
	}

	for _, segment := range strings.Split(prefix+"/"+fileName, "/") {
		if segment == ".." {
			return "", apperr.Validation("path must not contain '..' segments")
		}
	}
	if strings.Contains(fileName, "/") {
		return "", apperr.Validation("fileName must not contain '/'")
	}
	return path.Join(prefix, fileName), nil
}

// DefaultFolder is the key prefix used when the caller gives none.
func DefaultFolder(category model.Kind) string {
	return "generated/" + string(category) + "s"
}

// ExtensionFor resolves the file extension: table lookup first, category default second.
func ExtensionFor(contentType string, category model.Kind) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	if ext, ok := extensionByContentType[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return defaultExtension[category]
}

func isAllowed(contentType string, category model.Kind) bool {
	lower := strings.ToLower(contentType)
	for _, allowed := range allowedContentTypes[category] {
		if strings.Contains(lower, allowed) {
			return true
		}
	}
	return false
}

func tooLarge(size, maxSize int64, category model.Kind) error {
	return apperr.Validation("File size (%.2fMB) exceeds maximum allowed size (%dMB) for %s",
		float64(size)/mib, maxSize/mib, category)
}

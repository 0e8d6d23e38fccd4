package kie

import (
	"encoding/json"
	"strings"
)

// Family - Kie.ai 프로토콜 계열 (submit/status 엔드포인트와 응답 형식이 계열마다 다름)
type Family string

const (
	FamilyJobs       Family = "jobs"
	FamilyGPT4o      Family = "gpt4o"
	FamilyFlux       Family = "flux"
	FamilyMidjourney Family = "midjourney"
	FamilyVeo        Family = "veo"
	FamilyRunway     Family = "runway"
	FamilySuno       Family = "suno"
)

// Families lists every protocol family.
var Families = []Family{FamilyJobs, FamilyGPT4o, FamilyFlux, FamilyMidjourney, FamilyVeo, FamilyRunway, FamilySuno}

type endpoints struct {
	submit string
	status string
}

var familyEndpoints = map[Family]endpoints{
	FamilyJobs:       {submit: "/api/v1/jobs/createTask", status: "/api/v1/jobs/recordInfo"},
	FamilyGPT4o:      {submit: "/api/v1/gpt4o-image/generate", status: "/api/v1/gpt4o-image/record-info"},
	FamilyFlux:       {submit: "/api/v1/flux/kontext/generate", status: "/api/v1/flux/kontext/record-info"},
	FamilyMidjourney: {submit: "/api/v1/mj/generate", status: "/api/v1/mj/record-info"},
	FamilyVeo:        {submit: "/api/v1/veo/generate", status: "/api/v1/veo/record-info"},
	FamilyRunway:     {submit: "/api/v1/runway/generate", status: "/api/v1/runway/record-detail"},
	FamilySuno:       {submit: "/api/v1/generate", status: "/api/v1/generate/record-info"},
}

const (
	creditEndpoint       = "/api/v1/chat/credit"
	veo1080pEndpoint     = "/api/v1/veo/get-1080p-video"
	fileURLUploadPath    = "/api/file-url-upload"
	fileBase64UploadPath = "/api/file-base64-upload"
)

// envelope - 모든 Kie.ai 응답 공통 구조 (code 200 = 성공)
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type taskResponse struct {
	TaskID string `json:"taskId"`
}

// JobRequest is the body of the jobs/createTask endpoint.
type JobRequest struct {
	Model       string                 `json:"model"`
	Input       map[string]interface{} `json:"input"`
	CallBackURL string                 `json:"callBackUrl,omitempty"`
}

type fileURLUploadRequest struct {
	FileURL    string `json:"fileUrl"`
	UploadPath string `json:"uploadPath,omitempty"`
	FileName   string `json:"fileName,omitempty"`
}

type fileBase64UploadRequest struct {
	Base64Data string `json:"base64Data"`
	UploadPath string `json:"uploadPath,omitempty"`
	FileName   string `json:"fileName,omitempty"`
}

// UploadResult - 임시 스토리지 업로드 결과 (3일 보관)
type UploadResult struct {
	Success     bool   `json:"success"`
	FileName    string `json:"fileName"`
	FilePath    string `json:"filePath"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
	MimeType    string `json:"mimeType"`
	UploadedAt  string `json:"uploadedAt"`
	FileURL     string `json:"fileUrl,omitempty"`
}

// URL returns the address vendors should fetch the file from.
func (u *UploadResult) URL() string {
	if u.DownloadURL != "" {
		return u.DownloadURL
	}
	return u.FileURL
}

// recordInfo is the union of every family's status payload.
type recordInfo struct {
	State          string          `json:"state"`
	Status         string          `json:"status"`
	SuccessFlag    *int            `json:"successFlag"`
	ResultJSON     string          `json:"resultJson"`
	ResultURLs     json.RawMessage `json:"resultUrls"`
	ResultURL      string          `json:"resultUrl"`
	VideoURL       string          `json:"videoUrl"`
	Response       *recordResponse `json:"response"`
	ResultInfoJSON json.RawMessage `json:"resultInfoJson"`
	VideoInfo      *videoInfo      `json:"videoInfo"`
	FailMsg        string          `json:"failMsg"`
	ErrorMessage   string          `json:"errorMessage"`
}

type recordResponse struct {
	ResultURLs     []string    `json:"resultUrls"`
	ResultImageURL string      `json:"resultImageUrl"`
	SunoData       []sunoTrack `json:"sunoData"`
}

type sunoTrack struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration"`
}

type videoInfo struct {
	VideoURL string `json:"videoUrl"`
}

type mjResultInfo struct {
	ResultURLs []struct {
		ResultURL string `json:"resultUrl"`
	} `json:"resultUrls"`
}

type resultJSON struct {
	ResultURLs  []string `json:"resultUrls"`
	ResultURLs2 []string `json:"result_urls"`
}

// parseResultJSON - resultJson 문자열에서 URL 추출 (resultUrls 우선, result_urls 차선)
func parseResultJSON(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var r resultJSON
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil
	}
	if len(r.ResultURLs) > 0 {
		return r.ResultURLs
	}
	return r.ResultURLs2
}

// parseURLList accepts a JSON array of strings, a JSON-encoded array inside a string or a bare URL string.
func parseURLList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal([]byte(s), &single); err == nil && single != "" {
		return []string{single}
	}
	return []string{s}
}

func parseMidjourneyInfo(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var info mjResultInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil || json.Unmarshal([]byte(s), &info) != nil {
			return nil
		}
	}

	urls := make([]string, 0, len(info.ResultURLs))
	for _, u := range info.ResultURLs {
		if u.ResultURL != "" {
			urls = append(urls, u.ResultURL)
		}
	}
	return urls
}

package generation

import (
	"strconv"

	"genstudio-server/modules/kie"
)

// Input - vendor 요청으로 변환되기 전의 정규화된 입력
type Input struct {
	Prompt      string
	ImageURLs   []string
	AspectRatio string
	// Duration in seconds; 0 means the model default.
	Duration int
}

type payloadBuilder func(id ModelID, in Input) interface{}

func (in Input) aspect(fallback string) string {
	if in.AspectRatio != "" {
		return in.AspectRatio
	}
	return fallback
}

func (in Input) firstImage() string {
	if len(in.ImageURLs) == 0 {
		return ""
	}
	return in.ImageURLs[0]
}

func nanoBananaPayload(id ModelID, in Input) interface{} {
	input := map[string]interface{}{
		"prompt":        in.Prompt,
		"aspect_ratio":  in.aspect("auto"),
		"output_format": "png",
	}
	if len(in.ImageURLs) > 0 {
		input["image_input"] = in.ImageURLs
	}
	return kie.JobRequest{Model: string(id), Input: input}
}

func zImagePayload(id ModelID, in Input) interface{} {
	return kie.JobRequest{Model: string(id), Input: map[string]interface{}{
		"prompt":       in.Prompt,
		"aspect_ratio": in.aspect("1:1"),
	}}
}

// 5초 요청은 10 frames, 그 외는 15 frames
func soraPayload(id ModelID, in Input) interface{} {
	frames := "15"
	if in.Duration == 5 {
		frames = "10"
	}
	input := map[string]interface{}{
		"prompt":       in.Prompt,
		"aspect_ratio": in.aspect("landscape"),
		"n_frames":     frames,
	}
	if len(in.ImageURLs) > 0 {
		input["image_urls"] = in.ImageURLs
	}
	return kie.JobRequest{Model: string(id), Input: input}
}

func wanPayload(id ModelID, in Input) interface{} {
	duration := "5"
	if in.Duration == 10 {
		duration = "10"
	}
	input := map[string]interface{}{
		"prompt":     in.Prompt,
		"duration":   duration,
		"resolution": "720p",
	}
	if image := in.firstImage(); image != "" {
		input["image_url"] = image
	}
	return kie.JobRequest{Model: string(id), Input: input}
}

type midjourneyRequest struct {
	TaskType    string   `json:"taskType"`
	Prompt      string   `json:"prompt"`
	Version     string   `json:"version"`
	Speed       string   `json:"speed"`
	AspectRatio string   `json:"aspectRatio"`
	FileURLs    []string `json:"fileUrls,omitempty"`
}

func midjourneyPayload(_ ModelID, in Input) interface{} {
	taskType := "mj_txt2img"
	if len(in.ImageURLs) > 0 {
		taskType = "mj_img2img"
	}
	return midjourneyRequest{
		TaskType:    taskType,
		Prompt:      in.Prompt,
		Version:     "7",
		Speed:       "fast",
		AspectRatio: in.aspect("1:1"),
		FileURLs:    in.ImageURLs,
	}
}

type fluxKontextRequest struct {
	Prompt       string `json:"prompt"`
	Model        string `json:"model"`
	AspectRatio  string `json:"aspectRatio"`
	OutputFormat string `json:"outputFormat"`
	InputImage   string `json:"inputImage,omitempty"`
}

func fluxPayload(id ModelID, in Input) interface{} {
	return fluxKontextRequest{
		Prompt:       in.Prompt,
		Model:        string(id),
		AspectRatio:  in.aspect("1:1"),
		OutputFormat: "png",
		InputImage:   in.firstImage(),
	}
}

type gpt4oImageRequest struct {
	Prompt    string   `json:"prompt"`
	Size      string   `json:"size"`
	NVariants int      `json:"nVariants"`
	FilesURL  []string `json:"filesUrl,omitempty"`
}

func gpt4oPayload(_ ModelID, in Input) interface{} {
	return gpt4oImageRequest{
		Prompt:    in.Prompt,
		Size:      in.aspect("1:1"),
		NVariants: 1,
		FilesURL:  in.ImageURLs,
	}
}

type veoRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	GenerationType string   `json:"generationType"`
	AspectRatio    string   `json:"aspectRatio"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
}

func veoPayload(id ModelID, in Input) interface{} {
	vendorModel := "veo3"
	if id == Veo3Fast || id == Veo31Fast {
		vendorModel = "veo3_fast"
	}

	generationType := "TEXT_2_VIDEO"
	switch {
	case id == Veo31Reference:
		generationType = "REFERENCE_2_VIDEO"
	case len(in.ImageURLs) > 0:
		generationType = "FIRST_AND_LAST_FRAMES_2_VIDEO"
	}

	return veoRequest{
		Prompt:         in.Prompt,
		Model:          vendorModel,
		GenerationType: generationType,
		AspectRatio:    in.aspect("16:9"),
		ImageURLs:      in.ImageURLs,
	}
}

type runwayRequest struct {
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration"`
	Quality     string `json:"quality"`
	AspectRatio string `json:"aspectRatio"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

func runwayPayload(_ ModelID, in Input) interface{} {
	duration := 5
	if in.Duration == 10 {
		duration = 10
	}
	return runwayRequest{
		Prompt:      in.Prompt,
		Duration:    duration,
		Quality:     "720p",
		AspectRatio: in.aspect("16:9"),
		ImageURL:    in.firstImage(),
	}
}

type sunoRequest struct {
	Prompt       string `json:"prompt"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
}

func sunoPayload(id ModelID, in Input) interface{} {
	return sunoRequest{Prompt: in.Prompt, Model: string(id)}
}

// durationLabel - 로그/메트릭용
func durationLabel(seconds int) string {
	if seconds <= 0 {
		return "default"
	}
	return strconv.Itoa(seconds) + "s"
}

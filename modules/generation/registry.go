package generation

import (
	"sort"
	"strings"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/kie"
)

// ModelID - 지원 모델 식별자 (닫힌 집합)
type ModelID string

// Images
const (
	NanoBanana     ModelID = "google/nano-banana"
	NanoBananaEdit ModelID = "google/nano-banana-edit"
	NanoBananaPro  ModelID = "nano-banana-pro"
	ZImage         ModelID = "z-image"
	Midjourney     ModelID = "midjourney"
	FluxKontextPro ModelID = "flux-kontext-pro"
	FluxKontextMax ModelID = "flux-kontext-max"
	GPT4oImage     ModelID = "gpt4o-image"
)

// Videos
const (
	Sora2TextToVideo     ModelID = "sora-2-text-to-video"
	Sora2ImageToVideo    ModelID = "sora-2-image-to-video"
	Sora2ProTextToVideo  ModelID = "sora-2-pro-text-to-video"
	Sora2ProImageToVideo ModelID = "sora-2-pro-image-to-video"
	Veo3                 ModelID = "veo3"
	Veo3Fast             ModelID = "veo3_fast"
	Veo31Fast            ModelID = "veo-3.1-fast"
	Veo31StartEndFrame   ModelID = "veo-3.1-start-end-frame"
	Veo31Reference       ModelID = "veo-3.1-reference"
	RunwayGen3           ModelID = "runway-gen3"
	Wan25TextToVideo     ModelID = "wan/2-5-text-to-video"
	Wan25ImageToVideo    ModelID = "wan/2-5-image-to-video"
)

// Music (Suno)
const (
	SunoV4  ModelID = "V4"
	SunoV45 ModelID = "V4_5"
	SunoV5  ModelID = "V5"
)

// Feature - 모델이 지원하는 입력/출력 조합
type Feature string

const (
	FeatureTextToImage   Feature = "text-to-image"
	FeatureImageToImage  Feature = "image-to-image"
	FeatureTextToVideo   Feature = "text-to-video"
	FeatureImageToVideo  Feature = "image-to-video"
	FeatureStartEndFrame Feature = "start-end-frame-to-video"
	FeatureReference     Feature = "reference-to-video"
	FeatureTextToMusic   Feature = "text-to-music"
)

// Model is one registered model: what it produces and which protocol family submits it.
type Model struct {
	ID       ModelID
	Kind     model.Kind
	Family   kie.Family
	Features []Feature
	build    payloadBuilder
}

// Supports reports whether the model has feature f.
func (m Model) Supports(f Feature) bool {
	for _, have := range m.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Require returns a ValidationError unless the model supports at least one of features.
func (m Model) Require(features ...Feature) error {
	for _, f := range features {
		if m.Supports(f) {
			return nil
		}
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, string(f))
	}
	return apperr.Validation("Model %s does not support %s", m.ID, strings.Join(names, " or "))
}

// Payload builds the vendor request body for in.
func (m Model) Payload(in Input) interface{} {
	return m.build(m.ID, in)
}

var registry = map[ModelID]Model{
	NanoBanana:     {Kind: model.KindImage, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToImage}, build: nanoBananaPayload},
	NanoBananaEdit: {Kind: model.KindImage, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToImage, FeatureImageToImage}, build: nanoBananaPayload},
	NanoBananaPro:  {Kind: model.KindImage, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToImage, FeatureImageToImage}, build: nanoBananaPayload},
	ZImage:         {Kind: model.KindImage, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToImage}, build: zImagePayload},
	Midjourney:     {Kind: model.KindImage, Family: kie.FamilyMidjourney, Features: []Feature{FeatureTextToImage, FeatureImageToImage}, build: midjourneyPayload},
	FluxKontextPro: {Kind: model.KindImage, Family: kie.FamilyFlux, Features: []Feature{FeatureTextToImage, FeatureImageToImage}, build: fluxPayload},
	FluxKontextMax: {Kind: model.KindImage, Family: kie.FamilyFlux, Features: []Feature{FeatureTextToImage, FeatureImageToImage}, build: fluxPayload},
	GPT4oImage:     {Kind: model.KindImage, Family: kie.FamilyGPT4o, Features: []Feature{FeatureTextToImage, FeatureImageToImage}, build: gpt4oPayload},

	Sora2TextToVideo:     {Kind: model.KindVideo, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToVideo}, build: soraPayload},
	Sora2ImageToVideo:    {Kind: model.KindVideo, Family: kie.FamilyJobs, Features: []Feature{FeatureImageToVideo}, build: soraPayload},
	Sora2ProTextToVideo:  {Kind: model.KindVideo, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToVideo}, build: soraPayload},
	Sora2ProImageToVideo: {Kind: model.KindVideo, Family: kie.FamilyJobs, Features: []Feature{FeatureImageToVideo}, build: soraPayload},
	Veo3:                 {Kind: model.KindVideo, Family: kie.FamilyVeo, Features: []Feature{FeatureTextToVideo, FeatureImageToVideo, FeatureStartEndFrame}, build: veoPayload},
	Veo3Fast:             {Kind: model.KindVideo, Family: kie.FamilyVeo, Features: []Feature{FeatureTextToVideo, FeatureImageToVideo, FeatureStartEndFrame}, build: veoPayload},
	Veo31Fast:            {Kind: model.KindVideo, Family: kie.FamilyVeo, Features: []Feature{FeatureTextToVideo, FeatureImageToVideo, FeatureStartEndFrame, FeatureReference}, build: veoPayload},
	Veo31StartEndFrame:   {Kind: model.KindVideo, Family: kie.FamilyVeo, Features: []Feature{FeatureStartEndFrame}, build: veoPayload},
	Veo31Reference:       {Kind: model.KindVideo, Family: kie.FamilyVeo, Features: []Feature{FeatureReference}, build: veoPayload},
	RunwayGen3:           {Kind: model.KindVideo, Family: kie.FamilyRunway, Features: []Feature{FeatureTextToVideo, FeatureImageToVideo}, build: runwayPayload},
	Wan25TextToVideo:     {Kind: model.KindVideo, Family: kie.FamilyJobs, Features: []Feature{FeatureTextToVideo}, build: wanPayload},
	Wan25ImageToVideo:    {Kind: model.KindVideo, Family: kie.FamilyJobs, Features: []Feature{FeatureImageToVideo}, build: wanPayload},

	SunoV4:  {Kind: model.KindAudio, Family: kie.FamilySuno, Features: []Feature{FeatureTextToMusic}, build: sunoPayload},
	SunoV45: {Kind: model.KindAudio, Family: kie.FamilySuno, Features: []Feature{FeatureTextToMusic}, build: sunoPayload},
	SunoV5:  {Kind: model.KindAudio, Family: kie.FamilySuno, Features: []Feature{FeatureTextToMusic}, build: sunoPayload},
}

// 텍스트/이미지 입력에 따라 서로 바꿔 쓰는 모델 쌍 (text → image)
var imageVariants = map[ModelID]ModelID{
	Sora2TextToVideo:    Sora2ImageToVideo,
	Sora2ProTextToVideo: Sora2ProImageToVideo,
	Wan25TextToVideo:    Wan25ImageToVideo,
}

// Lookup resolves a model id; unknown ids are a ValidationError.
func Lookup(id string) (Model, error) {
	m, ok := registry[ModelID(id)]
	if !ok {
		return Model{}, apperr.Validation("Unknown model: %s", id)
	}
	m.ID = ModelID(id)
	return m, nil
}

// LookupKind is Lookup restricted to models producing kind.
func LookupKind(id string, kind model.Kind) (Model, error) {
	m, ok := registry[ModelID(id)]
	if !ok || m.Kind != kind {
		return Model{}, apperr.Validation("Unknown %s model: %s", kind, id)
	}
	m.ID = ModelID(id)
	return m, nil
}

// ResolveVariant picks the text or image flavour of a paired model.
// Models without a pair are returned unchanged.
func ResolveVariant(m Model, hasImage bool) Model {
	for text, image := range imageVariants {
		var target ModelID
		switch {
		case hasImage && m.ID == text:
			target = image
		case !hasImage && m.ID == image:
			target = text
		default:
			continue
		}
		resolved := registry[target]
		resolved.ID = target
		return resolved
	}
	return m
}

// Models returns every registered model ordered by id.
func Models() []Model {
	out := make([]Model, 0, len(registry))
	for id, m := range registry {
		m.ID = id
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// requiredFeatures - 요청 종류(kind)와 이미지 입력 여부로 필요한 feature 결정
func requiredFeatures(kind model.Kind, hasImage bool) []Feature {
	switch kind {
	case model.KindImage:
		if hasImage {
			return []Feature{FeatureImageToImage}
		}
		return []Feature{FeatureTextToImage}
	case model.KindVideo:
		if hasImage {
			return []Feature{FeatureImageToVideo, FeatureStartEndFrame, FeatureReference}
		}
		return []Feature{FeatureTextToVideo}
	case model.KindAudio:
		return []Feature{FeatureTextToMusic}
	default:
		return nil
	}
}

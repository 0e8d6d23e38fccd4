package kie

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/poller"
)

// successFlag 값: 0 생성중, 1 성공, 2 작업 생성 실패, 3 생성 실패
const (
	flagGenerating = 0
	flagSuccess    = 1
)

// Status issues one status query for taskID and normalizes the family's answer.
func (c *Client) Status(ctx context.Context, family Family, taskID string) (poller.Status, error) {
	ep, ok := familyEndpoints[family]
	if !ok {
		return poller.Status{}, apperr.Validation("unsupported provider family %q", family)
	}

	var info recordInfo
	if err := c.call(ctx, "status_"+string(family), http.MethodGet, c.statusURL(ep.status, taskID), nil, &info); err != nil {
		return poller.Status{}, err
	}

	status, err := normalize(family, &info)
	if err != nil {
		return poller.Status{}, err
	}

	if family == FamilyVeo && status.State == poller.Succeeded && len(status.URLs) == 0 {
		if u := c.veo1080p(ctx, taskID); u != "" {
			status.URLs = []string{u}
		}
	}
	return status, nil
}

// veo1080p asks for the upscaled video; it is often not ready yet, so errors are ignored.
func (c *Client) veo1080p(ctx context.Context, taskID string) string {
	var out struct {
		VideoURL string `json:"videoUrl"`
	}
	if err := c.call(ctx, "veo_1080p", http.MethodGet, c.statusURL(veo1080pEndpoint, taskID), nil, &out); err != nil {
		c.log.Debug().Err(err).Str("task_id", taskID).Msg("1080p video not available")
		return ""
	}
	return out.VideoURL
}

func normalize(family Family, info *recordInfo) (poller.Status, error) {
	switch family {
	case FamilyJobs:
		return normalizeState(info.State, parseResultJSON(info.ResultJSON), firstNonEmpty(info.FailMsg, info.ErrorMessage), "generation failed"), nil

	case FamilyGPT4o:
		var urls []string
		if info.Response != nil {
			urls = info.Response.ResultURLs
		}
		return normalizeFlag(info.SuccessFlag, urls, info.ErrorMessage, "GPT-4o Image generation failed"), nil

	case FamilyFlux:
		var urls []string
		switch {
		case info.Response != nil && info.Response.ResultImageURL != "":
			urls = []string{info.Response.ResultImageURL}
		case len(parseURLList(info.ResultURLs)) > 0:
			urls = parseURLList(info.ResultURLs)
		case info.ResultURL != "":
			urls = []string{info.ResultURL}
		}
		return normalizeFlag(info.SuccessFlag, urls, info.ErrorMessage, "Flux Kontext Image generation failed"), nil

	case FamilyMidjourney:
		urls := parseMidjourneyInfo(info.ResultInfoJSON)
		if len(urls) == 0 {
			urls = parseURLList(info.ResultURLs)
		}
		if info.SuccessFlag == nil && info.State != "" {
			return normalizeState(info.State, urls, info.ErrorMessage, "Midjourney Image generation failed"), nil
		}
		return normalizeFlag(info.SuccessFlag, urls, info.ErrorMessage, "Midjourney Image generation failed"), nil

	case FamilyVeo:
		var urls []string
		switch {
		case info.Response != nil && len(info.Response.ResultURLs) > 0:
			urls = info.Response.ResultURLs
		case len(parseURLList(info.ResultURLs)) > 0:
			urls = parseURLList(info.ResultURLs)
		case info.VideoURL != "":
			urls = []string{info.VideoURL}
		}
		return normalizeFlag(info.SuccessFlag, urls, info.ErrorMessage, "Veo 3.1 Video generation failed"), nil

	case FamilyRunway:
		var urls []string
		if info.VideoInfo != nil && info.VideoInfo.VideoURL != "" {
			urls = []string{info.VideoInfo.VideoURL}
		}
		return normalizeState(info.State, urls, firstNonEmpty(info.FailMsg, info.ErrorMessage), "Runway Video generation failed"), nil

	case FamilySuno:
		var urls []string
		if info.Response != nil {
			for _, track := range info.Response.SunoData {
				if track.AudioURL != "" {
					urls = append(urls, track.AudioURL)
				}
			}
		}
		return normalizeSuno(info.Status, urls, info.ErrorMessage), nil

	default:
		return poller.Status{}, fmt.Errorf("no status mapping for family %q", family)
	}
}

func normalizeState(state string, urls []string, msg, fallback string) poller.Status {
	switch strings.ToLower(state) {
	case "success":
		return poller.Status{State: poller.Succeeded, URLs: urls}
	case "fail", "failed":
		return poller.Status{State: poller.Failed, Message: firstNonEmpty(msg, fallback)}
	default:
		return poller.Status{State: poller.Pending}
	}
}

func normalizeFlag(flag *int, urls []string, msg, fallback string) poller.Status {
	switch {
	case flag == nil || *flag == flagGenerating:
		return poller.Status{State: poller.Pending}
	case *flag == flagSuccess:
		return poller.Status{State: poller.Succeeded, URLs: urls}
	default:
		return poller.Status{State: poller.Failed, Message: firstNonEmpty(msg, fallback)}
	}
}

// normalizeSuno - SUCCESS 외에 *_FAILED / *_ERROR 상태도 실패로 처리
func normalizeSuno(status string, urls []string, msg string) poller.Status {
	s := strings.ToUpper(status)
	switch {
	case s == "SUCCESS":
		return poller.Status{State: poller.Succeeded, URLs: urls}
	case strings.Contains(s, "FAIL"), strings.Contains(s, "ERROR"):
		return poller.Status{State: poller.Failed, Message: firstNonEmpty(msg, "Suno Music generation failed")}
	default:
		return poller.Status{State: poller.Pending}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package billing

import "github.com/mvstudio/backend/internal/domain/shared"

// Action is a paid operation that the ledger charges credits for
type Action string

const (
	ActionMVAnalysis         Action = "mvAnalysis"
	ActionIdolGeneration     Action = "idolGeneration"
	ActionStoryboard         Action = "storyboard"
	ActionForgeImage         Action = "forgeImage"
	ActionAIInspiration      Action = "aiInspiration"
	ActionNBPImage2K         Action = "nbpImage2K"
	ActionNBPImage4K         Action = "nbpImage4K"
	ActionRapid3D            Action = "rapid3D"
	ActionRapid3DPBR         Action = "rapid3D_pbr"
	ActionPro3D              Action = "pro3D"
	ActionPro3DPBR           Action = "pro3D_pbr"
	ActionPro3DPBRMV         Action = "pro3D_pbr_mv"
	ActionPro3DFull          Action = "pro3D_full"
	ActionVideoGeneration    Action = "videoGeneration"
	ActionIdol3D             Action = "idol3D"
	ActionSunoMusicV4        Action = "sunoMusicV4"
	ActionSunoMusicV5        Action = "sunoMusicV5"
	ActionSunoLyrics         Action = "sunoLyrics"
	ActionKlingVideo         Action = "klingVideo"
	ActionKlingMotionControl Action = "klingMotionControl"
	ActionKlingLipSync       Action = "klingLipSync"
	ActionKlingImageO1_1K    Action = "klingImageO1_1K"
	ActionKlingImageO1_2K    Action = "klingImageO1_2K"
	ActionKlingImageV2_1K    Action = "klingImageV2_1K"
	ActionKlingImageV2_2K    Action = "klingImageV2_2K"
)

// String returns the string representation of Action
func (a Action) String() string {
	return string(a)
}

// IsValid returns true if the action has a catalog cost
func (a Action) IsValid() bool {
	_, ok := actionCosts[a]
	return ok
}

// ParseAction converts a string to a known Action
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", ErrUnknownAction(s)
	}
	return a, nil
}

// Feature returns the quota-gated feature this action counts against, if any
func (a Action) Feature() (FeatureType, bool) {
	switch a {
	case ActionStoryboard:
		return FeatureStoryboard, true
	case ActionMVAnalysis:
		return FeatureAnalysis, true
	case ActionIdolGeneration:
		return FeatureAvatar, true
	case ActionVideoGeneration:
		return FeatureVideoGeneration, true
	}
	return "", false
}

// IsKlingAction marks the video calls that also draw from the beta Kling sub-limit
func IsKlingAction(a Action) bool {
	switch a {
	case ActionKlingVideo, ActionKlingMotionControl, ActionKlingLipSync:
		return true
	}
	return false
}

// ErrUnknownAction is returned when an action has no catalog cost
func ErrUnknownAction(action string) *shared.DomainError {
	return shared.NewDomainError("UNKNOWN_ACTION", "Unknown action: "+action)
}

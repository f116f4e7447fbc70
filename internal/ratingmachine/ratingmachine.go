// package ratingmachine implements the pure tri-state rating transition
// table. It has no I/O: callers read the current rating from the catalog,
// run a transition, and write the result back themselves.
package ratingmachine

import "github.com/tuncenator/ytmpd/internal/catalog"

// Action is a user-triggered rating action.
type Action int

const (
	Like Action = iota
	Dislike
)

// Transition computes the next rating for (current, action), per the fixed
// table:
//
//	Neutral  + Like    -> Liked
//	Neutral  + Dislike -> Disliked
//	Liked    + Like    -> Neutral
//	Liked    + Dislike -> Disliked
//	Disliked + Like    -> Liked
//	Disliked + Dislike -> Neutral
//
// The catalog conflates Neutral and Disliked on read, so a Neutral read may
// actually be a Disliked track; Transition always enters at the Neutral row
// in that case. A double-Dislike therefore dislikes a track twice rather
// than toggling it back to Neutral.
func Transition(current catalog.Rating, action Action) catalog.Rating {
	switch current {
	case catalog.RatingLiked:
		switch action {
		case Like:
			return catalog.RatingNeutral
		case Dislike:
			return catalog.RatingDisliked
		}
	case catalog.RatingDisliked:
		switch action {
		case Like:
			return catalog.RatingLiked
		case Dislike:
			return catalog.RatingNeutral
		}
	case catalog.RatingNeutral:
		switch action {
		case Like:
			return catalog.RatingLiked
		case Dislike:
			return catalog.RatingDisliked
		}
	}
	return catalog.RatingNeutral
}

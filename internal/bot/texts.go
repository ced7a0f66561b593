package bot

import (
	"fmt"

	"eventbot/internal/flows"
	"eventbot/internal/session"
)

// Texts is every user-facing string. Fields with verbs are formatted as
// noted.
type Texts struct {
	Archive          string
	RememberQuestion string // %s host name
	RememberYes      string
	RememberNo       string
	WelcomeAccepted  string
	WelcomeDeclined  string
	MenuTitle        string
	UseMenu          string
	Error            string

	BtnLocation  string
	BtnTime      string
	BtnBring     string
	BtnWishlist  string
	BtnGreeting  string
	BtnUpload    string
	BtnFortune   string
	BtnAttend    string
	BtnSong      string
	BtnCountdown string
	BtnBack      string
	BtnCancel    string

	WishlistEmpty    string
	WishlistTitle    string
	AttendConfirmed  string // %d guests
	AttendAlready    string // %d guests
	CountdownLeft    string // %d days
	CountdownToday   string
	CountdownAgo     string // %d days
	FortunePrefix    string
	NoticeCancelled  string
	NothingToCancel  string
	Forbidden        string
	GreetingPrompt   string
	GreetingUnsupp   string
	GreetingSaved    string
	MediaPrompt      string
	MediaUnsupp      string
	MediaSaved       string
	MediaLimit       string // %s limit
	UploadsNotYet    string // %s days
	SongPrompt       string
	SongTextOnly     string
	SongLength       string // %s range
	SongSaved        string
	WishItemPrompt   string
	WishDeletePrompt string
	WishAdded        string // %s id
	WishDeleted      string // %s id
	WishBadID        string
	WishNotFound     string // %s id
	WishTextOnly     string
}

func DefaultTexts() Texts {
	return Texts{
		Archive:          "🎈 The party is over, thank you all! The bot is now in archive mode.",
		RememberQuestion: "👋 Hi! Do you remember %s?",
		RememberYes:      "😊 Yes, of course",
		RememberNo:       "🤔 Not really",
		WelcomeAccepted:  "🎉 Great! Welcome to the party bot.",
		WelcomeDeclined:  "🙂 No worries, you will meet at the party!",
		MenuTitle:        "🎂 Main menu",
		UseMenu:          "Use the menu below 👇",
		Error:            "❌ Something went wrong. Please try again later.",

		BtnLocation:  "📍 Location",
		BtnTime:      "🕒 Time",
		BtnBring:     "🎒 What to bring",
		BtnWishlist:  "🎁 Wishlist",
		BtnGreeting:  "💌 Send a greeting",
		BtnUpload:    "📸 Upload photos",
		BtnFortune:   "🔮 Fortune",
		BtnAttend:    "✅ I'm coming",
		BtnSong:      "🎵 Suggest a song",
		BtnCountdown: "⏳ Countdown",
		BtnBack:      "⬅️ Back to menu",
		BtnCancel:    "❌ Cancel",

		WishlistEmpty:    "The wishlist is empty for now.",
		WishlistTitle:    "🎁 Wishlist",
		AttendConfirmed:  "✅ Thanks for confirming! Guests coming: %d",
		AttendAlready:    "You have already confirmed 😊 Guests coming: %d",
		CountdownLeft:    "⏳ Days left until the party: %d",
		CountdownToday:   "🎉 The party is today!",
		CountdownAgo:     "The party was %d days ago 🥳",
		FortunePrefix:    "🔮 ",
		NoticeCancelled:  "❌ Cancelled.",
		NothingToCancel:  "Nothing to cancel.",
		Forbidden:        "⛔ forbidden",
		GreetingPrompt:   "💌 Send your greeting: text, photo, video, voice or sticker.",
		GreetingUnsupp:   "This kind of message cannot be a greeting. Send text, photo, video, voice or a sticker.",
		GreetingSaved:    "✅ Your greeting is saved! It will be delivered on the big day.",
		MediaPrompt:      "📸 Send photos, videos or voice notes from the party. Press cancel when done.",
		MediaUnsupp:      "Only photos, videos and voice notes go into the album.",
		MediaSaved:       "✅ File saved to the album!",
		MediaLimit:       "You have reached the limit of %s files.",
		UploadsNotYet:    "📸 The album is not open yet. Days left: %s",
		SongPrompt:       "🎵 Send the song name and artist.",
		SongTextOnly:     "Please send the song as text.",
		SongLength:       "The song text must be %s characters long.",
		SongSaved:        "🎶 Thanks! Your song is on the list.",
		WishItemPrompt:   "Send the text of the new wishlist item.",
		WishDeletePrompt: "Send the id of the wishlist item to delete.",
		WishAdded:        "✅ Wishlist item #%s added.",
		WishDeleted:      "🗑 Wishlist item #%s deleted.",
		WishBadID:        "Send a positive number.",
		WishNotFound:     "No wishlist item with id %s.",
		WishTextOnly:     "Please send text.",
	}
}

// notice renders a flow result.
func (t Texts) notice(res session.Result) string {
	switch res.Notice {
	case session.NoticeCancelled:
		return t.NoticeCancelled
	case session.NoticeNothingToCancel:
		return t.NothingToCancel
	case session.NoticeForbidden:
		return t.Forbidden
	case session.NoticeArchive:
		return t.Archive
	case flows.NoticeGreetingPrompt:
		return t.GreetingPrompt
	case flows.NoticeGreetingUnsupported:
		return t.GreetingUnsupp
	case flows.NoticeGreetingSaved:
		return t.GreetingSaved
	case flows.NoticeMediaPrompt:
		return t.MediaPrompt
	case flows.NoticeMediaUnsupported:
		return t.MediaUnsupp
	case flows.NoticeMediaSaved:
		return t.MediaSaved
	case flows.NoticeMediaLimit:
		return fmt.Sprintf(t.MediaLimit, res.Detail)
	case flows.NoticeUploadsNotYet:
		return fmt.Sprintf(t.UploadsNotYet, res.Detail)
	case flows.NoticeSongPrompt:
		return t.SongPrompt
	case flows.NoticeSongTextOnly:
		return t.SongTextOnly
	case flows.NoticeSongLength:
		return fmt.Sprintf(t.SongLength, res.Detail)
	case flows.NoticeSongSaved:
		return t.SongSaved
	case flows.NoticeWishlistItemPrompt:
		return t.WishItemPrompt
	case flows.NoticeWishlistDeletePrompt:
		return t.WishDeletePrompt
	case flows.NoticeWishlistAdded:
		return fmt.Sprintf(t.WishAdded, res.Detail)
	case flows.NoticeWishlistDeleted:
		return fmt.Sprintf(t.WishDeleted, res.Detail)
	case flows.NoticeWishlistBadID:
		return t.WishBadID
	case flows.NoticeWishlistNotFound:
		return fmt.Sprintf(t.WishNotFound, res.Detail)
	case flows.NoticeWishlistTextOnly:
		return t.WishTextOnly
	}
	return ""
}

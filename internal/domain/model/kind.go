package model

// Kind is the model variant discriminant.
type Kind string

// Model variants.
const (
	KindContent         Kind = "content"
	KindArticle         Kind = "article"
	KindSet             Kind = "set"
	KindMedia           Kind = "media"
	KindImage           Kind = "image"
	KindVideo           Kind = "video"
	KindAudio           Kind = "audio"
	KindDictionaryEntry Kind = "dictionary_entry"
)

const vocabPrefix = "ekn://_vocab/"

// Kinds lists every variant.
func Kinds() []Kind {
	return []Kind{
		KindContent, KindArticle, KindSet, KindMedia,
		KindImage, KindVideo, KindAudio, KindDictionaryEntry,
	}
}

// IsValid checks if the kind is one of the supported variants.
func (k Kind) IsValid() bool {
	switch k {
	case KindContent, KindArticle, KindSet, KindMedia,
		KindImage, KindVideo, KindAudio, KindDictionaryEntry:
		return true
	}
	return false
}

// TypeURI returns the @type value of the variant.
func (k Kind) TypeURI() string {
	switch k {
	case KindContent:
		return vocabPrefix + "ContentObject"
	case KindArticle:
		return vocabPrefix + "ArticleObject"
	case KindSet:
		return vocabPrefix + "SetObject"
	case KindMedia:
		return vocabPrefix + "MediaObject"
	case KindImage:
		return vocabPrefix + "ImageObject"
	case KindVideo:
		return vocabPrefix + "VideoObject"
	case KindAudio:
		return vocabPrefix + "AudioObject"
	case KindDictionaryEntry:
		return vocabPrefix + "DictionaryObject"
	}
	return ""
}

// Parent returns the variant this one specializes. Content has no parent.
func (k Kind) Parent() (Kind, bool) {
	switch k {
	case KindImage, KindVideo:
		return KindMedia, true
	case KindArticle, KindSet, KindMedia, KindAudio, KindDictionaryEntry:
		return KindContent, true
	}
	return "", false
}

// Is reports whether k is other or specializes it (an image is a media is a content).
func (k Kind) Is(other Kind) bool {
	for cur, ok := k, true; ok; cur, ok = cur.Parent() {
		if cur == other {
			return true
		}
	}
	return false
}

// KindFromTypeURI maps an @type value to its variant.
func KindFromTypeURI(uri string) (Kind, bool) {
	for _, k := range Kinds() {
		if k.TypeURI() == uri {
			return k, true
		}
	}
	return "", false
}

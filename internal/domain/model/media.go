package model

// Media is a binary media object with optional dimensions.
type Media struct {
	Content
	caption   string
	width     int
	height    int
	parentURI string
}

func parseMedia(c Content, f *fields) Media {
	m := Media{
		Content:   c,
		caption:   f.str("caption"),
		parentURI: f.str("parent"),
	}
	m.width, _ = f.count("width")
	m.height, _ = f.count("height")
	return m
}

// Kind returns KindMedia.
func (m *Media) Kind() Kind { return KindMedia }

// Caption returns the media caption.
func (m *Media) Caption() string { return m.caption }

// Width returns the width in pixels, 0 when unknown.
func (m *Media) Width() int { return m.width }

// Height returns the height in pixels, 0 when unknown.
func (m *Media) Height() int { return m.height }

// ParentURI returns the ekn id of the content this media belongs to.
func (m *Media) ParentURI() string { return m.parentURI }

func (m *Media) encode(tree map[string]any) {
	m.Content.encode(tree)
	putString(tree, "caption", m.caption)
	putCount(tree, "width", m.width, m.width != 0)
	putCount(tree, "height", m.height, m.height != 0)
	putString(tree, "parent", m.parentURI)
}

// Image is a still image.
type Image struct {
	Media
}

// Kind returns KindImage.
func (i *Image) Kind() Kind { return KindImage }

// Video is a video with duration and transcript.
type Video struct {
	Media
	duration   int
	transcript string
	posterURI  string
}

func parseVideo(m Media, f *fields) *Video {
	v := &Video{
		Media:      m,
		transcript: f.str("transcript"),
		posterURI:  f.str("poster"),
	}
	v.duration, _ = f.count("duration")
	return v
}

// Kind returns KindVideo.
func (v *Video) Kind() Kind { return KindVideo }

// Duration returns the duration as stored.
func (v *Video) Duration() int { return v.duration }

// Transcript returns the transcript text.
func (v *Video) Transcript() string { return v.transcript }

// PosterURI returns the ekn id of the poster image.
func (v *Video) PosterURI() string { return v.posterURI }

func (v *Video) encode(tree map[string]any) {
	v.Media.encode(tree)
	putCount(tree, "duration", v.duration, v.duration != 0)
	putString(tree, "transcript", v.transcript)
	putString(tree, "poster", v.posterURI)
}

// Audio is an audio recording.
type Audio struct {
	Content
	duration   int
	transcript string
}

func parseAudio(c Content, f *fields) *Audio {
	a := &Audio{Content: c, transcript: f.str("transcript")}
	a.duration, _ = f.count("duration")
	return a
}

// Kind returns KindAudio.
func (a *Audio) Kind() Kind { return KindAudio }

// Duration returns the duration as stored.
func (a *Audio) Duration() int { return a.duration }

// Transcript returns the transcript text.
func (a *Audio) Transcript() string { return a.transcript }

func (a *Audio) encode(tree map[string]any) {
	a.Content.encode(tree)
	putCount(tree, "duration", a.duration, a.duration != 0)
	putString(tree, "transcript", a.transcript)
}

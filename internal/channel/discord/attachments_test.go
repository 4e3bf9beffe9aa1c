package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/threadvault/threadvault/internal/ingest"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		url   string
		media ingest.MediaType
		ok    bool
	}{
		{"jpeg", "https://cdn.example.com/att/123/IMG_0042.JPG?ex=abc", ingest.MediaImage, true},
		{"png", "https://cdn.example.com/att/123/shot.png", ingest.MediaImage, true},
		{"mov", "https://cdn.example.com/att/123/clip.MOV", ingest.MediaVideo, true},
		{"mkv", "https://cdn.example.com/att/123/clip.mkv", ingest.MediaVideo, true},
		{"heic excluded", "https://cdn.example.com/att/123/IMG_0042.HEIC", "", false},
		{"pdf excluded", "https://cdn.example.com/att/123/notes.pdf", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			media, ok := classify(tt.url)
			if ok != tt.ok {
				t.Fatalf("classify(%q) ok = %v, want %v", tt.url, ok, tt.ok)
			}
			if media != tt.media {
				t.Fatalf("classify(%q) = %q, want %q", tt.url, media, tt.media)
			}
		})
	}
}

func TestFileNameFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		url   string
		media ingest.MediaType
		want  string
	}{
		{"image", "https://cdn.example.com/att/123/IMG_0042.JPG?ex=abc", ingest.MediaImage, "img_0042.jpg"},
		{"video", "https://cdn.example.com/att/123/Prom_Clip.mp4", ingest.MediaVideo, "prom_clip.mp4"},
		{"no match", "https://cdn.example.com/att/123/notes.pdf", ingest.MediaImage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := fileNameFromURL(tt.url, tt.media); got != tt.want {
				t.Fatalf("fileNameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestCollectBatch(t *testing.T) {
	t.Parallel()

	msg := &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "thread-1",
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", URL: "https://cdn.example.com/a/photo.jpg", Size: 2048, ContentType: "image/jpeg"},
			{ID: "a2", URL: "https://cdn.example.com/a/clip.mov", Size: 4096},
			{ID: "a3", URL: "https://cdn.example.com/a/notes.pdf", Size: 128},
		},
	}

	batch := collectBatch(msg, "thread-1", "Summer '26", "")

	if batch.ThreadName != "Summer 26" {
		t.Fatalf("thread name = %q, want apostrophe stripped", batch.ThreadName)
	}
	if batch.ReplyTarget != "thread-1" {
		t.Fatalf("reply target = %q", batch.ReplyTarget)
	}
	if len(batch.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2 (pdf ignored)", len(batch.Tasks))
	}

	img := batch.Tasks[0]
	if img.Name != "photo.jpg" || img.Media != ingest.MediaImage || img.ContentType != "image/jpeg" {
		t.Fatalf("image task = %+v", img)
	}
	if img.DeclaredSize != 2048 || img.BatchID != batch.ID {
		t.Fatalf("image task = %+v", img)
	}

	vid := batch.Tasks[1]
	if vid.Media != ingest.MediaVideo {
		t.Fatalf("video media = %q", vid.Media)
	}
	if vid.ContentType != "video/mov" {
		t.Fatalf("video content type fallback = %q", vid.ContentType)
	}
}

func TestCollectBatchExplicitFolder(t *testing.T) {
	t.Parallel()

	msg := &discordgo.Message{
		ChannelID: "chan-1",
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", URL: "https://cdn.example.com/a/photo.png", Size: 10},
		},
	}

	batch := collectBatch(msg, "chan-1", "general", "Prom 2026")
	if batch.FolderName != "Prom 2026" {
		t.Fatalf("folder name = %q", batch.FolderName)
	}
}

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	if !shouldSkip("these are private, NO UPLOAD please") {
		t.Fatal("expected skip for opt-out phrase")
	}
	if shouldSkip("prom photos!") {
		t.Fatal("unexpected skip")
	}
}

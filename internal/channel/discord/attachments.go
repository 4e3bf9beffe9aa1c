package discord

import (
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/threadvault/threadvault/internal/ingest"
)

// skipPhrase opts a message out of ingestion when present in its content.
const skipPhrase = "no upload"

var (
	imageNamePattern = regexp.MustCompile(`(\w+\.(?:png|jpg|jpeg))`)
	videoNamePattern = regexp.MustCompile(`(\w+\.(?:mp4|mov|avi|mkv))`)
)

// classify maps an attachment URL to a media type by extension. Content
// types from the platform are untrusted and routinely absent, so the URL
// is the source of truth, as it names the actual file.
func classify(url string) (ingest.MediaType, bool) {
	lower := strings.ToLower(url)
	if imageNamePattern.MatchString(lower) {
		return ingest.MediaImage, true
	}
	if videoNamePattern.MatchString(lower) {
		return ingest.MediaVideo, true
	}
	return "", false
}

// fileNameFromURL extracts the media file name from an attachment URL,
// normalizing spaces and quotes.
func fileNameFromURL(url string, media ingest.MediaType) string {
	lower := strings.ToLower(url)
	pattern := imageNamePattern
	if media == ingest.MediaVideo {
		pattern = videoNamePattern
	}
	match := pattern.FindString(lower)
	if match == "" {
		return ""
	}
	return strings.NewReplacer(" ", "_", "'", "").Replace(match)
}

// contentTypeFor prefers the platform-declared content type and falls
// back to one derived from the file extension.
func contentTypeFor(att *discordgo.MessageAttachment, media ingest.MediaType, name string) string {
	if att.ContentType != "" {
		return att.ContentType
	}
	ext := strings.TrimPrefix(name[strings.LastIndex(name, "."):], ".")
	if ext == "jpg" {
		ext = "jpeg"
	}
	return string(media) + "/" + ext
}

// collectBatch converts a message's media attachments into an ingest
// batch. Non-media attachments are ignored; an empty batch means there
// is nothing to process.
func collectBatch(msg *discordgo.Message, threadID, threadName, folderName string) ingest.Batch {
	batch := ingest.Batch{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		ThreadName:  sanitizeThreadName(threadName),
		ReplyTarget: msg.ChannelID,
		FolderName:  folderName,
	}

	for _, att := range msg.Attachments {
		media, ok := classify(att.URL)
		if !ok {
			continue
		}
		name := fileNameFromURL(att.URL, media)
		if name == "" {
			continue
		}
		batch.Tasks = append(batch.Tasks, ingest.Task{
			ID:           att.ID,
			BatchID:      batch.ID,
			ThreadID:     threadID,
			ThreadName:   batch.ThreadName,
			URL:          att.URL,
			Name:         name,
			DeclaredSize: int64(att.Size),
			ContentType:  contentTypeFor(att, media, name),
			Media:        media,
		})
	}

	return batch
}

func sanitizeThreadName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "'", "")
}

func shouldSkip(content string) bool {
	return strings.Contains(strings.ToLower(content), skipPhrase)
}

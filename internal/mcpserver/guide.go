package mcpserver

const guideURI = "screenflowr://guide"

// UsageGuide describes how agents should drive recordings and annotations.
const UsageGuide = `# Screenflowr Usage Guide

## Recording

1. Call ` + "`" + `recording_status` + "`" + ` first. A new recording can only start when the
   state is ` + "`" + `idle` + "`" + ` or ` + "`" + `stopped` + "`" + `.
2. ` + "`" + `start_recording` + "`" + ` asks for screen capture. A permission error means the
   user declined; do not retry without asking them.
3. ` + "`" + `pause_recording` + "`" + ` and ` + "`" + `resume_recording` + "`" + ` are no-ops in the wrong state.
   Paused time does not count toward the duration.
4. ` + "`" + `stop_recording` + "`" + ` returns the artifact: ID, MIME type, size and duration in
   whole seconds.

## Artifacts & Uploads

- Artifacts live in memory until deleted with ` + "`" + `delete_artifact` + "`" + `.
- ` + "`" + `upload_artifact` + "`" + ` sends one artifact to one or more sinks
  (` + "`" + `local-filesystem` + "`" + `, ` + "`" + `generic-remote` + "`" + `, ` + "`" + `drive` + "`" + `). Sinks run
  independently: one failing never hides another's result.
- ` + "`" + `import_recording` + "`" + ` copies an external .webm or .mp4 into the recordings
  directory (http/https URL or base64 data URI, 512 MB max).

## Annotations

- ` + "`" + `annotation_state` + "`" + ` returns strokes, shapes and text labels in canvas pixels.
- ` + "`" + `place_text` + "`" + ` uses the current color; the font size defaults to four times
  the stroke width.
  Blank text is ignored.
- ` + "`" + `undo_annotation` + "`" + ` reverts one change; a clear counts as one change.
  There is no redo.

## Example

` + "```" + `
recording_status            -> {"state":"idle", ...}
start_recording             -> {"state":"recording", ...}
place_text x=40 y=60 text="Step 1"
stop_recording              -> {"id":"…","mime_type":"video/webm;codecs=vp9", ...}
upload_artifact id=… sinks=local-filesystem,drive
` + "```" + `
`

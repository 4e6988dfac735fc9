package mcpserver

// ExportFormatContract describes the pathnote export/backup document and the
// rules note paths and content must satisfy.
const ExportFormatContract = `# pathnote Export Format

Exports, backups and inbox drops share one JSON document format.

## Document

` + "```" + `json
{
  "version": 1,
  "exported_at": "2030-01-02T03:04:05Z",
  "notes": [
    {
      "path": "groceries",
      "content": "<p>milk, eggs</p>",
      "is_locked": false,
      "view_count": 3,
      "created_at": "2030-01-01T10:00:00Z",
      "updated_at": "2030-01-02T09:30:00Z"
    }
  ]
}
` + "```" + `

- ` + "`" + `version` + "`" + ` is required and must be 1.
- Exports set ` + "`" + `exported_at` + "`" + `, backups set ` + "`" + `created_at` + "`" + `.
- Locked notes carry ` + "`" + `lock_type` + "`" + ` (` + "`" + `read` + "`" + ` or ` + "`" + `write` + "`" + `) and
  ` + "`" + `password_hash` + "`" + ` (bcrypt). A locked entry without a hash is imported unlocked.

## Paths

1. Letters, digits, ` + "`" + `-` + "`" + ` and ` + "`" + `_` + "`" + ` only; no slashes or dots.
2. Length between the configured bounds (1 to 20 by default).
3. Reserved words (` + "`" + `admin` + "`" + `, ` + "`" + `api` + "`" + `, ` + "`" + `static` + "`" + ` and any configured extras) are
   rejected in any letter case.

## Content

- Content is rich-text HTML. Scripts, styles, frames, embedded objects,
  event-handler attributes and ` + "`" + `javascript:` + "`" + ` URLs are stripped on save.
- The first save of a note must not be blank.

## Import behaviour

- Notes are applied one at a time; the run reports ` + "`" + `imported` + "`" + `, ` + "`" + `skipped` + "`" + `,
  ` + "`" + `failed` + "`" + ` and per-note ` + "`" + `errors` + "`" + `.
- Existing paths are skipped unless overwrite is requested.
`

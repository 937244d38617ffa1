package core

// statements.go renders the SQL text written by the batch builder.
//
// Values are inlined as literals because one statement carries thousands of
// rows. Text is stripped of NUL bytes, cut to the column limit in runes and
// quoted with pq.QuoteLiteral; identifiers go through pgx.Identifier.

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// Table names of the catalog.
const (
	VideoTable       = "video"
	ChannelInfoTable = "channelinfo"
	VersionTable     = "version"
)

// Column limits in runes.
const (
	limitChannel     = 128
	limitDescription = 32768
	limitText        = 1024
	limitMeta        = 256
)

// Verb selects how rows are written.
type Verb int

const (
	// VerbInsert appends rows and fails on identifier conflicts.
	VerbInsert Verb = iota
	// VerbReplace overwrites the row with the same identifier.
	VerbReplace
)

func (v Verb) String() string {
	if v == VerbReplace {
		return "replace"
	}
	return "insert"
}

var videoColumns = []string{
	"id", "channel", "theme", "title", "duration", "size_mb", "description",
	"url", "website", "subtitle", "url_rtmp", "url_small", "url_rtmp_small",
	"url_hd", "url_rtmp_hd", "date_unix", "url_history", "geo", "parse_m3u8",
	"new_entry", "last_update",
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ",")
}

// Clip returns s as it is stored in a column of limit runes: NUL bytes
// removed and the tail cut. A limit of 0 keeps the full text.
func Clip(s string, limit int) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		cut := 0
		for i := range s {
			if limit == 0 {
				cut = i
				break
			}
			limit--
		}
		s = s[:cut]
	}
	return s
}

// Literal returns s as a quoted SQL string literal of at most limit runes.
func Literal(s string, limit int) string {
	return pq.QuoteLiteral(Clip(s, limit))
}

func boolInt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// VideoPrefix is the opening of a video statement.
func VideoPrefix() string {
	return "INSERT INTO " + ident(VideoTable) + " (" + columnList(videoColumns) + ") VALUES "
}

// VideoTerminator ends a video statement for verb.
func VideoTerminator(verb Verb) string {
	if verb != VerbReplace {
		return ";"
	}
	sets := make([]string, 0, len(videoColumns)-1)
	for _, c := range videoColumns[1:] {
		sets = append(sets, ident(c)+"=EXCLUDED."+ident(c))
	}
	return " ON CONFLICT (" + ident("id") + ") DO UPDATE SET " + strings.Join(sets, ",") + ";"
}

// VideoTuple renders the value tuple of one entry.
func VideoTuple(e *Entry) string {
	var b strings.Builder
	b.Grow(256 + len(e.Description))

	b.WriteByte('(')
	b.WriteString(strconv.FormatInt(e.ID, 10))
	for _, v := range []string{
		Literal(e.Channel, limitChannel),
		Literal(e.Theme, limitText),
		Literal(e.Title, limitText),
		strconv.Itoa(e.Duration),
		strconv.Itoa(e.SizeMB),
		Literal(e.Description, limitDescription),
		Literal(e.URL, limitText),
		Literal(e.Website, limitText),
		Literal(e.Subtitle, limitText),
		Literal(e.URLRTMP, limitText),
		Literal(e.URLSmall, limitText),
		Literal(e.URLRTMPSmall, limitText),
		Literal(e.URLHD, limitText),
		Literal(e.URLRTMPHD, limitText),
		strconv.FormatInt(e.DateUnix, 10),
		Literal(e.URLHistory, limitText),
		Literal(e.Geo, limitText),
		"0",
		boolInt(e.NewEntry),
		strconv.FormatInt(e.Update, 10),
	} {
		b.WriteByte(',')
		b.WriteString(v)
	}
	b.WriteByte(')')
	return b.String()
}

// MergeChannels combines rollups of the same channel. A channel that appears
// in several runs of the list produces one rollup per run.
func MergeChannels(infos []ChannelInfo) []ChannelInfo {
	index := make(map[string]int, len(infos))
	out := make([]ChannelInfo, 0, len(infos))
	for _, ci := range infos {
		i, ok := index[ci.Channel]
		if !ok {
			index[ci.Channel] = len(out)
			out = append(out, ci)
			continue
		}
		m := &out[i]
		m.Count += ci.Count
		if ci.Latest > m.Latest {
			m.Latest = ci.Latest
		}
		if ci.Oldest < m.Oldest {
			m.Oldest = ci.Oldest
		}
	}
	return out
}

// ChannelInfoStatement renders the rollup write. In full mode rows are plain
// inserts. In diff mode existing rows are widened and their count is taken
// from the video table after the pass.
func ChannelInfoStatement(infos []ChannelInfo, diff bool) string {
	if len(infos) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + ident(ChannelInfoTable) + " (" +
		columnList([]string{"channel", "count", "latest", "oldest"}) + ") VALUES ")
	for i, ci := range MergeChannels(infos) {
		if i > 0 {
			b.WriteByte(',')
		}
		oldest := int64(0)
		if ci.HasOldest() {
			oldest = ci.Oldest
		}
		latest := ci.Latest
		if latest < 0 {
			latest = 0
		}
		count := strconv.Itoa(ci.Count)
		if diff {
			count = "(SELECT COUNT(*) FROM " + ident(VideoTable) + " WHERE " + ident("channel") + "=" + Literal(ci.Channel, limitChannel) + ")"
		}
		b.WriteString("(" + Literal(ci.Channel, limitMeta) + "," + count + "," +
			strconv.FormatInt(latest, 10) + "," + strconv.FormatInt(oldest, 10) + ")")
	}

	if diff {
		t := ident(ChannelInfoTable)
		b.WriteString(" ON CONFLICT (" + ident("channel") + ") DO UPDATE SET " +
			`"count"=EXCLUDED."count",` +
			`"latest"=GREATEST(` + t + `."latest",EXCLUDED."latest"),` +
			`"oldest"=CASE WHEN ` + t + `."oldest"=0 THEN EXCLUDED."oldest" WHEN EXCLUDED."oldest"=0 THEN ` + t + `."oldest" ELSE LEAST(` + t + `."oldest",EXCLUDED."oldest") END`)
	}
	b.WriteByte(';')
	return b.String()
}

// VersionInfo describes the loaded list for the version table.
type VersionInfo struct {
	DBVersion      string
	RunTime        int64
	ListVersion    string
	ListDate       int64
	ProgramName    string
	ProgramVersion string
}

// VersionStatement renders the single-row version upsert. The entry count
// is taken from the video table.
func VersionStatement(v VersionInfo) string {
	cols := []string{"id", "version", "vdate", "mvversion", "mvdate", "mventrys", "progname", "progversion"}
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, ident(c)+"=EXCLUDED."+ident(c))
	}
	return "INSERT INTO " + ident(VersionTable) + " (" + columnList(cols) + ") VALUES (1," +
		Literal(v.DBVersion, limitMeta) + "," +
		strconv.FormatInt(v.RunTime, 10) + "," +
		Literal(v.ListVersion, limitMeta) + "," +
		strconv.FormatInt(v.ListDate, 10) + "," +
		"(SELECT COUNT(*) FROM " + ident(VideoTable) + ")," +
		Literal(v.ProgramName, limitMeta) + "," +
		Literal(v.ProgramVersion, limitMeta) +
		") ON CONFLICT (" + ident("id") + ") DO UPDATE SET " + strings.Join(sets, ",") + ";"
}

package channels

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Channel is one live entry of an M3U playlist.
type Channel struct {
	Position  int    `json:"position"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	TVGName   string `json:"tvgName,omitempty"`
	Logo      string `json:"logo,omitempty"`
	Group     string `json:"group,omitempty"`
	StreamURL string `json:"streamUrl"`
}

type Playlist struct {
	EPGURL   string
	Channels []Channel
}

// ParsePlaylist reads an extended M3U document. Entries without a stream URL
// are dropped; comment and directive lines other than #EXTINF are ignored.
func ParsePlaylist(r io.Reader) (Playlist, error) {
	var (
		pl      Playlist
		pending map[string]string
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTM3U"):
			attrs, _ := parseAttrs(strings.TrimPrefix(line, "#EXTM3U"))
			pl.EPGURL = attrs["x-tvg-url"]
			if pl.EPGURL == "" {
				pl.EPGURL = attrs["url-tvg"]
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			pending = parseExtinf(line)
		case strings.HasPrefix(line, "#"):
		default:
			if pending == nil || !isStreamURL(line) {
				continue
			}
			pl.Channels = append(pl.Channels, toChannel(pending, line, len(pl.Channels)+1))
			pending = nil
		}
	}
	return pl, sc.Err()
}

func toChannel(attrs map[string]string, streamURL string, pos int) Channel {
	name := attrs["name"]
	if name == "" {
		name = attrs["tvg-name"]
	}
	if name == "" {
		name = "Channel " + strconv.Itoa(pos)
	}
	id := attrs["tvg-id"]
	if id == "" {
		id = strconv.Itoa(pos)
	}
	return Channel{
		Position:  pos,
		ID:        id,
		Name:      name,
		TVGName:   attrs["tvg-name"],
		Logo:      attrs["tvg-logo"],
		Group:     attrs["group-title"],
		StreamURL: streamURL,
	}
}

// parseExtinf splits "#EXTINF:-1 k="v" ...,Display Name". The display name
// starts after the first comma outside quotes.
func parseExtinf(line string) map[string]string {
	body := strings.TrimPrefix(line, "#EXTINF:")
	attrs, rest := parseAttrs(body)
	if i := strings.IndexByte(rest, ','); i >= 0 {
		attrs["name"] = strings.TrimSpace(rest[i+1:])
	}
	return attrs
}

// parseAttrs consumes key="value" pairs and returns them with whatever
// follows the last pair.
func parseAttrs(s string) (map[string]string, string) {
	attrs := make(map[string]string)
	i := 0
	for i < len(s) {
		if s[i] == ',' {
			return attrs, s[i:]
		}
		eq := strings.IndexByte(s[i:], '=')
		comma := strings.IndexByte(s[i:], ',')
		if eq < 0 || (comma >= 0 && comma < eq) {
			break
		}
		key := strings.TrimSpace(s[i : i+eq])
		if sp := strings.LastIndexAny(key, " \t"); sp >= 0 {
			key = key[sp+1:]
		}
		j := i + eq + 1
		if j >= len(s) || (s[j] != '"' && s[j] != '\'') {
			break
		}
		quote := s[j]
		end := strings.IndexByte(s[j+1:], quote)
		if end < 0 {
			break
		}
		attrs[strings.ToLower(key)] = s[j+1 : j+1+end]
		i = j + 1 + end + 1
	}
	return attrs, s[i:]
}

func isStreamURL(s string) bool {
	l := strings.ToLower(s)
	for _, p := range []string{"http://", "https://", "rtmp://", "rtsp://", "udp://"} {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	return false
}

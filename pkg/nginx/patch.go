package nginx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

const (
	DefaultMarker     = "/uploads/"
	DefaultAnchor     = "    location /api/ {"
	DefaultUploadsDir = "/var/www/zued/uploads"

	UpdatedMessage = "Nginx config updated"
	PresentMessage = "/uploads/ already configured"
	MissingMessage = "anchor line not found, config left unchanged"
)

// UploadsPatch inserts a static uploads location into a site config.
type UploadsPatch struct {
	SitePath   string
	UploadsDir string
	Marker     string
	Anchor     string
}

func NewUploadsPatch(sitePath, uploadsDir string) *UploadsPatch {
	return &UploadsPatch{
		SitePath:   sitePath,
		UploadsDir: uploadsDir,
		Marker:     DefaultMarker,
		Anchor:     DefaultAnchor,
	}
}

// Block is the text inserted before the anchor, including its leading
// blank line and trailing newline.
func (p *UploadsPatch) Block() string {
	alias := strings.TrimSuffix(p.UploadsDir, "/") + "/"
	return "\n" +
		"    location /uploads/ {\n" +
		"        alias " + alias + ";\n" +
		"        expires 30d;\n" +
		"        add_header Cache-Control \"public\";\n" +
		"    }\n"
}

// Apply returns cfg with the block inserted before every anchor line and
// whether anything changed. Content that already contains the marker, or
// has no anchor, is returned unchanged.
func (p *UploadsPatch) Apply(cfg string) (string, bool) {
	if strings.Contains(cfg, p.Marker) {
		return cfg, false
	}
	if !p.HasAnchor(cfg) {
		return cfg, false
	}
	return strings.ReplaceAll(cfg, p.Anchor, p.Block()+p.Anchor), true
}

// HasAnchor reports whether cfg contains the insertion point.
func (p *UploadsPatch) HasAnchor(cfg string) bool {
	return strings.Contains(cfg, p.Anchor)
}

var scriptTemplate = template.Must(template.New("patch").Parse(`import sys
path = {{ .Path }}
marker = {{ .Marker }}
anchor = {{ .Anchor }}
block = {{ .Block }}
cfg = open(path).read()
if marker in cfg:
    print({{ .Present }})
elif anchor not in cfg:
    print({{ .Missing }})
    sys.exit(1)
else:
    cfg = cfg.replace(anchor, block + anchor)
    open(path, 'w').write(cfg)
    print({{ .Updated }})
`))

// Script renders a Python 3 program that applies the same transformation
// as Apply to the site config on the remote host. A config without the
// anchor makes the script exit non-zero.
func (p *UploadsPatch) Script() (string, error) {
	values := map[string]string{
		"Path":    p.SitePath,
		"Marker":  p.Marker,
		"Anchor":  p.Anchor,
		"Block":   p.Block(),
		"Updated": UpdatedMessage,
		"Present": PresentMessage,
		"Missing": MissingMessage,
	}
	data := make(map[string]string, len(values))
	for k, v := range values {
		quoted, err := pyString(v)
		if err != nil {
			return "", fmt.Errorf("failed to quote %s: %w", k, err)
		}
		data[k] = quoted
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render patch script: %w", err)
	}
	return buf.String(), nil
}

// pyString renders s as a Python string literal. JSON string syntax is a
// subset of Python's for the escapes json.Marshal emits once HTML escaping
// is off.
func pyString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// IsConfigValid interprets the output of `nginx -t`.
func IsConfigValid(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "ok") || strings.Contains(lower, "successful")
}

package themes

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Interest is one external research-interest note reduced to keywords.
type Interest struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

var (
	frontmatterPattern = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n?`)
	headingPattern     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	boldPattern        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
)

// noteFrontmatter is the subset of YAML frontmatter keys that carry
// keywords.
type noteFrontmatter struct {
	Title    string   `yaml:"title"`
	Tags     []string `yaml:"tags"`
	Topics   []string `yaml:"topics"`
	Keywords []string `yaml:"keywords"`
}

// loadInterests reads every markdown file in the configured directory. A
// missing or unset directory yields no interests and no error.
func (d *Detector) loadInterests() []Interest {
	if d.interestsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(d.interestsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("Cannot read research interests dir %s: %v", d.interestsDir, err)
		}
		return nil
	}
	var interests []Interest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.interestsDir, entry.Name()))
		if err != nil {
			d.logger.Warn("Skipping interest note %s: %v", entry.Name(), err)
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		interests = append(interests, Interest{
			Name:     name,
			Keywords: noteKeywords(name, string(data)),
		})
	}
	return interests
}

// noteKeywords collects keywords from the filename, the YAML frontmatter,
// and the structural markdown (headings and bold runs).
func noteKeywords(filename, content string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(raw string) {
		for _, kw := range Tokenize(raw) {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}

	add(strings.ReplaceAll(filename, "-", " "))

	if m := frontmatterPattern.FindStringSubmatch(content); m != nil {
		var fm noteFrontmatter
		if err := yaml.Unmarshal([]byte(m[1]), &fm); err == nil {
			add(fm.Title)
			for _, lists := range [][]string{fm.Tags, fm.Topics, fm.Keywords} {
				for _, item := range lists {
					add(item)
				}
			}
		}
		content = content[len(m[0]):]
	}
	for _, m := range headingPattern.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range boldPattern.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return out
}

// relatedInterests matches cluster keywords against interest keywords by
// substring in either direction.
func relatedInterests(clusterKeywords []string, interests []Interest) []string {
	var out []string
	for _, interest := range interests {
		matched := false
		for _, ik := range interest.Keywords {
			for _, ck := range clusterKeywords {
				if strings.Contains(ik, ck) || strings.Contains(ck, ik) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if matched {
			out = append(out, interest.Name)
		}
	}
	return out
}

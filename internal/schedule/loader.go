package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"broadcast-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// TimeLayout is the local-time layout accepted for absolute item times.
const TimeLayout = "2006-01-02 15:04:05"

const (
	defaultCorrectText   = "Correct!"
	defaultIncorrectText = "Unfortunately, that is not the right answer."
	defaultAckText       = "Answer accepted! Results will be announced after the quiz ends."
)

// Duration accepts Go duration strings ("5m") in YAML and JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MediaSpec is the configured form of domain.Media.
type MediaSpec struct {
	Kind string `yaml:"kind" json:"kind"`
	Ref  string `yaml:"ref" json:"ref"`
}

// HintSpec is the configured form of domain.Hint.
type HintSpec struct {
	Text  string   `yaml:"text" json:"text"`
	Delay Duration `yaml:"delay" json:"delay"`
}

// ItemSpec is one stage or post as written in a campaign file or the
// schedule_items table. Times are either absolute (Start/End/Publish) or
// relative to boot (StartAfter/Duration) for rehearsals.
type ItemSpec struct {
	ID            int        `yaml:"id" json:"id"`
	Kind          string     `yaml:"kind" json:"kind"`
	Start         string     `yaml:"start" json:"start"`
	End           string     `yaml:"end" json:"end"`
	Publish       string     `yaml:"publish" json:"publish"`
	StartAfter    *Duration  `yaml:"start_after" json:"start_after"`
	Duration      *Duration  `yaml:"duration" json:"duration"`
	Text          string     `yaml:"text" json:"text"`
	Media         *MediaSpec `yaml:"media" json:"media"`
	Options       []string   `yaml:"options" json:"options"`
	CorrectAnswer string     `yaml:"correct_answer" json:"correct_answer"`
	CorrectText   string     `yaml:"correct_text" json:"correct_text"`
	IncorrectText string     `yaml:"incorrect_text" json:"incorrect_text"`
	BonusMedia    *MediaSpec `yaml:"bonus_media" json:"bonus_media"`
	AckText       string     `yaml:"ack_text" json:"ack_text"`
	Hint          *HintSpec  `yaml:"hint" json:"hint"`
}

// CampaignSpec is the root of a campaign file.
type CampaignSpec struct {
	Timezone string `yaml:"timezone"`
	Welcome  struct {
		Text  string     `yaml:"text"`
		Media *MediaSpec `yaml:"media"`
	} `yaml:"welcome"`
	Rules string     `yaml:"rules"`
	Items []ItemSpec `yaml:"items"`
}

// Campaign is a validated campaign ready to build a Schedule from.
type Campaign struct {
	Location     *time.Location
	WelcomeText  string
	WelcomeMedia *domain.Media
	Rules        string
	Items        []domain.ScheduleItem
}

// LoadFile reads and compiles a YAML campaign file. Relative item times are
// resolved against boot; absolute times use the file's timezone or loc.
func LoadFile(path string, boot time.Time, loc *time.Location) (Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Campaign{}, fmt.Errorf("read campaign: %w", err)
	}
	return Parse(data, boot, loc)
}

// Parse compiles YAML campaign data.
func Parse(data []byte, boot time.Time, loc *time.Location) (Campaign, error) {
	var spec CampaignSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Campaign{}, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}
	return spec.Compile(boot, loc)
}

// Compile validates the campaign and resolves all times.
func (c CampaignSpec) Compile(boot time.Time, loc *time.Location) (Campaign, error) {
	if c.Timezone != "" {
		fileLoc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return Campaign{}, fmt.Errorf("%w: timezone %q: %v", domain.ErrInvalidSchedule, c.Timezone, err)
		}
		loc = fileLoc
	}
	if loc == nil {
		loc = time.UTC
	}
	welcomeMedia, err := compileMedia(c.Welcome.Media)
	if err != nil {
		return Campaign{}, fmt.Errorf("%w: welcome: %v", domain.ErrInvalidSchedule, err)
	}
	items, err := CompileItems(c.Items, boot, loc)
	if err != nil {
		return Campaign{}, err
	}
	return Campaign{
		Location:     loc,
		WelcomeText:  c.Welcome.Text,
		WelcomeMedia: welcomeMedia,
		Rules:        c.Rules,
		Items:        items,
	}, nil
}

// CompileItems validates item specs and converts them to schedule items.
func CompileItems(specs []ItemSpec, boot time.Time, loc *time.Location) ([]domain.ScheduleItem, error) {
	seen := make(map[int]bool, len(specs))
	finals := 0
	items := make([]domain.ScheduleItem, 0, len(specs))
	var errs []error
	for _, spec := range specs {
		item, err := spec.compile(boot, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", spec.ID, err))
			continue
		}
		if seen[item.ID] {
			errs = append(errs, fmt.Errorf("item %d: duplicate id", item.ID))
			continue
		}
		seen[item.ID] = true
		if item.Kind == domain.KindFinal {
			finals++
		}
		items = append(items, item)
	}
	if finals > 1 {
		errs = append(errs, fmt.Errorf("%d final stages, at most one allowed", finals))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSchedule, errors.Join(errs...))
	}
	return items, nil
}

func (s ItemSpec) compile(boot time.Time, loc *time.Location) (domain.ScheduleItem, error) {
	if s.ID <= 0 {
		return domain.ScheduleItem{}, errors.New("id must be positive")
	}
	kind := domain.ItemKind(strings.ToLower(strings.TrimSpace(s.Kind)))
	if kind == "" {
		kind = domain.KindStage
	}
	if strings.TrimSpace(s.Text) == "" {
		return domain.ScheduleItem{}, errors.New("text is required")
	}

	media, err := compileMedia(s.Media)
	if err != nil {
		return domain.ScheduleItem{}, err
	}
	bonus, err := compileMedia(s.BonusMedia)
	if err != nil {
		return domain.ScheduleItem{}, fmt.Errorf("bonus media: %w", err)
	}

	item := domain.ScheduleItem{
		ID:   s.ID,
		Kind: kind,
		Content: domain.Content{
			Text:          s.Text,
			Media:         media,
			CorrectAnswer: domain.NormalizeAnswer(s.CorrectAnswer),
			CorrectText:   orDefault(s.CorrectText, defaultCorrectText),
			IncorrectText: orDefault(s.IncorrectText, defaultIncorrectText),
			BonusMedia:    bonus,
			AckText:       orDefault(s.AckText, defaultAckText),
		},
	}
	for _, opt := range s.Options {
		if strings.TrimSpace(opt) == "" {
			return domain.ScheduleItem{}, errors.New("empty option label")
		}
		item.Content.Options = append(item.Content.Options, strings.TrimSpace(opt))
	}

	switch kind {
	case domain.KindPost:
		if s.Hint != nil {
			return domain.ScheduleItem{}, errors.New("posts cannot carry hints")
		}
		if len(item.Content.Options) > 0 {
			return domain.ScheduleItem{}, errors.New("posts cannot carry options")
		}
		item.Start, err = resolveInstant(s.Publish, s.StartAfter, boot, loc)
		if err != nil {
			return domain.ScheduleItem{}, fmt.Errorf("publish: %w", err)
		}
	case domain.KindStage, domain.KindFinal:
		item.Start, err = resolveInstant(s.Start, s.StartAfter, boot, loc)
		if err != nil {
			return domain.ScheduleItem{}, fmt.Errorf("start: %w", err)
		}
		switch {
		case s.End != "":
			item.End, err = parseTime(s.End, loc)
			if err != nil {
				return domain.ScheduleItem{}, fmt.Errorf("end: %w", err)
			}
		case s.Duration != nil:
			item.End = item.Start.Add(s.Duration.Duration)
		default:
			return domain.ScheduleItem{}, errors.New("end or duration is required")
		}
		if !item.Start.Before(item.End) {
			return domain.ScheduleItem{}, errors.New("start must be before end")
		}
		if kind == domain.KindStage {
			if item.Content.CorrectAnswer == "" {
				return domain.ScheduleItem{}, errors.New("correct_answer is required for scored stages")
			}
			if len(item.Content.Options) > 0 && !item.HasOption(item.Content.CorrectAnswer) {
				return domain.ScheduleItem{}, errors.New("correct_answer is not one of the options")
			}
		}
		if s.Hint != nil {
			if strings.TrimSpace(s.Hint.Text) == "" {
				return domain.ScheduleItem{}, errors.New("hint text is required")
			}
			if s.Hint.Delay.Duration < 0 {
				return domain.ScheduleItem{}, errors.New("hint delay must not be negative")
			}
			item.Hint = &domain.Hint{Text: s.Hint.Text, Delay: s.Hint.Delay.Duration}
		}
	default:
		return domain.ScheduleItem{}, fmt.Errorf("unknown kind %q", s.Kind)
	}
	return item, nil
}

func resolveInstant(raw string, after *Duration, boot time.Time, loc *time.Location) (time.Time, error) {
	if raw != "" {
		return parseTime(raw, loc)
	}
	if after != nil {
		return boot.In(loc).Add(after.Duration), nil
	}
	return time.Time{}, errors.New("missing time")
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation(TimeLayout, raw, loc)
}

func compileMedia(spec *MediaSpec) (*domain.Media, error) {
	if spec == nil || spec.Ref == "" {
		return nil, nil
	}
	kind := domain.MediaKind(strings.ToLower(spec.Kind))
	if kind == "" {
		kind = domain.MediaPhoto
	}
	if kind != domain.MediaPhoto && kind != domain.MediaVideo {
		return nil, fmt.Errorf("unknown media kind %q", spec.Kind)
	}
	return &domain.Media{Kind: kind, Ref: spec.Ref}, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

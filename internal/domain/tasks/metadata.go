package tasks

import (
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
)

// setVariants lists the kinds whose variant pointer is populated.
func setVariants(m model.TaskMetadata) []model.TaskType {
	var out []model.TaskType
	if m.Quiz != nil {
		out = append(out, model.TaskQuiz)
	}
	if m.Refer != nil {
		out = append(out, model.TaskRefer)
	}
	if m.Discord != nil {
		out = append(out, model.TaskJoinDiscord)
	}
	if m.Watch != nil {
		out = append(out, model.TaskWatchAndEarn)
	}
	if m.Custom != nil {
		out = append(out, model.TaskCustom)
	}
	return out
}

// ValidateMetadata checks that only the variant named by Kind is populated.
func ValidateMetadata(m model.TaskMetadata) error {
	const op = "tasks.validate_metadata"
	set := setVariants(m)
	if m.Kind == "" {
		if len(set) > 0 {
			return errs.Newf(op, errs.ErrValidation, "metadata kind is required")
		}
		return nil
	}
	if !m.Kind.Valid() {
		return errs.Newf(op, errs.ErrValidation, "unknown task type %q", m.Kind)
	}
	for _, k := range set {
		if k != m.Kind {
			return errs.Newf(op, errs.ErrValidation, "%s metadata on a %s task", k, m.Kind)
		}
	}
	return nil
}

// MergeMetadata overlays upd onto cur field by field. Zero fields in upd
// leave cur unchanged. Both must be of the same kind once cur has one.
func MergeMetadata(cur, upd model.TaskMetadata) (model.TaskMetadata, error) {
	const op = "tasks.merge_metadata"
	if err := ValidateMetadata(upd); err != nil {
		return cur, err
	}
	if upd.Kind == "" {
		return cur, nil
	}
	if cur.Kind != "" && cur.Kind != upd.Kind {
		return cur, errs.Newf(op, errs.ErrValidation, "cannot merge %s metadata into %s", upd.Kind, cur.Kind)
	}
	out := cur
	out.Kind = upd.Kind
	switch upd.Kind {
	case model.TaskQuiz:
		if upd.Quiz != nil {
			q := deref(out.Quiz)
			if upd.Quiz.Score != 0 {
				q.Score = upd.Quiz.Score
			}
			if upd.Quiz.Answered != 0 {
				q.Answered = upd.Quiz.Answered
			}
			out.Quiz = &q
		}
	case model.TaskRefer:
		if upd.Refer != nil {
			r := deref(out.Refer)
			if upd.Refer.Referrals != 0 {
				r.Referrals = upd.Refer.Referrals
			}
			out.Refer = &r
		}
	case model.TaskJoinDiscord:
		if upd.Discord != nil {
			d := deref(out.Discord)
			if upd.Discord.Handle != "" {
				d.Handle = upd.Discord.Handle
			}
			out.Discord = &d
		}
	case model.TaskWatchAndEarn:
		if upd.Watch != nil {
			w := deref(out.Watch)
			if upd.Watch.Seconds != 0 {
				w.Seconds = upd.Watch.Seconds
			}
			out.Watch = &w
		}
	case model.TaskCustom:
		if upd.Custom != nil {
			c := deref(out.Custom)
			if upd.Custom.Note != "" {
				c.Note = upd.Custom.Note
			}
			out.Custom = &c
		}
	}
	return out, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

package tabular

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/rangira/stacklens/pkg/httputil"
)

const locationTemplate = "{{city}}, {{state}}, {{country}}"

// Entities returns the configuration for every exposed table and view.
// These map one to one onto the reporting schema; adding an entity means
// adding a Config here, not a new code path.
func Entities() []Config {
	return []Config{
		users(),
		locations(),
		tags(),
		questions(),
		answers(),
		skillsByLocation(),
		answersByLocalHour(),
	}
}

// Register mounts list and lookup routes for every entity on the router.
// Aggregate views have no row identity and are list-only.
func Register(r *httputil.Router, newSource func(table string) RowSource, logger *zap.Logger) error {
	for _, cfg := range Entities() {
		ctrl, err := NewController(cfg, newSource(cfg.Table), logger)
		if err != nil {
			return err
		}
		r.Handle("GET /"+cfg.Name+"/{$}", http.HandlerFunc(ctrl.List))
		if !cfg.ListOnly {
			r.Handle("GET /"+cfg.Name+"/{id}", http.HandlerFunc(ctrl.Get))
			r.Handle("GET /"+cfg.Name+"/{id}/{$}", http.HandlerFunc(ctrl.Get))
		}
	}
	return nil
}

func users() Config {
	return Config{
		Name:  "users",
		Table: "users",
		InputFields: []string{
			"id", "name", "reputation", "location_id", "views", "upvotes", "downvotes", "age",
		},
		OutputLabels: []string{
			"ID", "Name", "Reputation", "Location ID", "Views", "Upvotes", "Downvotes", "Age",
		},
		Postprocessors: map[string]Postprocessor{
			"name": {Kind: LinkOpen, URL: "//stackoverflow.com/users/{{id}}"},
			"location_id": {
				Kind:    LinkReplace,
				URL:     "/locations/{{location_id}}/",
				Replace: "{{id}} ({{city}}, {{state}}, {{country}})",
			},
		},
	}
}

func locations() Config {
	return Config{
		Name:         "locations",
		Table:        "locations",
		InputFields:  []string{"id", "location", "city", "state", "country", "timezone"},
		OutputLabels: []string{"ID", "Location", "City", "State", "Country", "Timezone"},
		Postprocessors: map[string]Postprocessor{
			"city":    {Kind: LinkOpen, URL: "//maps.google.com/maps/place/{{city}},{{state}},{{country}}"},
			"state":   {Kind: LinkOpen, URL: "//maps.google.com/maps/place/{{state}},{{country}}"},
			"country": {Kind: LinkOpen, URL: "//maps.google.com/maps/place/{{country}}"},
		},
		Postprocess: func(env *Envelope) {
			env.SetExtra("location", locationTemplate)
			env.SetExtra("score", "1")
		},
	}
}

func tags() Config {
	return Config{
		Name:         "tags",
		Table:        "tags",
		InputFields:  []string{"id", "name"},
		OutputLabels: []string{"ID", "Name"},
		Postprocessors: map[string]Postprocessor{
			"name": {Kind: LinkOpen, URL: "//stackoverflow.com/questions/tagged/{{name}}"},
		},
	}
}

func questions() Config {
	return Config{
		Name:  "questions",
		Table: "questions",
		InputFields: []string{
			"id", "title", "accepted_answer_id", "score", "author_id", "answer_count",
		},
		OutputLabels: []string{
			"ID", "Title", "Accepted Answer ID", "Score", "Author ID", "Answer Count",
		},
		Postprocessors: map[string]Postprocessor{
			"id":                 {Kind: LinkOpen, URL: "//stackoverflow.com/questions/{{id}}"},
			"accepted_answer_id": {Kind: LinkOpen, URL: "//stackoverflow.com/a/{{accepted_answer_id}}"},
			"author_id":          {Kind: LinkOpen, URL: "//stackoverflow.com/users/{{author_id}}"},
		},
	}
}

func answers() Config {
	return Config{
		Name:         "answers",
		Table:        "answers",
		InputFields:  []string{"id", "question_id", "score", "author_id"},
		OutputLabels: []string{"ID", "Question ID", "Score", "Author ID"},
		Postprocessors: map[string]Postprocessor{
			"id":        {Kind: LinkOpen, URL: "//stackoverflow.com/a/{{id}}"},
			"author_id": {Kind: LinkOpen, URL: "//stackoverflow.com/users/{{author_id}}"},
			"question_id": {
				Kind:    LinkReplace,
				URL:     "/questions/{{question_id}}/",
				Replace: "{{title}}",
			},
		},
	}
}

func skillsByLocation() Config {
	return Config{
		Name:         "view_skills_locations",
		Table:        "view_skills_locations",
		ListOnly:     true,
		InputFields:  []string{"city", "country", "state", "skill_id", "total_score"},
		OutputLabels: []string{"City", "Country", "State", "Skill ID", "Total Score"},
		OrderStage: func(q Query) Query {
			return q.OrderBy("total_score", true)
		},
		Postprocess: func(env *Envelope) {
			env.SetExtra("location", locationTemplate)
			env.SetExtra("score", "{{total_score}}")
		},
	}
}

func answersByLocalHour() Config {
	return Config{
		Name:         "view_answers_local_time",
		Table:        "view_answers_local_time",
		ListOnly:     true,
		InputFields:  []string{"activity", "hour"},
		OutputLabels: []string{"Activity", "Hour"},
		PageSize:     24, // one row per hour of the day
		SelectOverride: func(src RowSource) Query {
			return src.Select(
				Column{Name: "activity", Expr: "count(id)"},
				Column{Name: "hour", Expr: "date_part('hour', local_creation_date)"},
			)
		},
		FilterStage: func(q Query) Query {
			return q.NotNull("local_creation_date")
		},
		GroupStage: func(q Query) Query {
			return q.GroupBy("date_part('hour', local_creation_date)")
		},
		OrderStage: func(q Query) Query {
			return q.OrderBy("activity", true)
		},
		Postprocess: func(env *Envelope) {
			env.SetExtra("timechart", true)
		},
	}
}

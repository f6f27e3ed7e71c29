// Command trip is the command-line client for the tour planner.
//
// Exit codes: 0 success, 2 invalid arguments, 3 city or POI not found,
// 4 constraints infeasible, 5 storage or internal failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"wayfarer/internal/app"
	"wayfarer/pkg/config"
	"wayfarer/pkg/fault"
	"wayfarer/pkg/logging"
	"wayfarer/pkg/model"
	"wayfarer/pkg/reopt"
)

const usage = `usage: trip <command> [flags]

commands:
  plan          plan a new tour
  show          print a stored tour
  list          list stored tours
  replace       replace a POI with one of its backups
  add-language  add a language edition to a tour
  validate      check a city catalog for consistency issues
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()

	err := dispatch(os.Args[1], os.Args[2:])
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "trip: %v\n", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch fault.KindOf(err) {
	case fault.Invalid, fault.Conflict:
		return 2
	case fault.NotFound:
		return 3
	case fault.Infeasible:
		return 4
	default:
		return 5
	}
}

func dispatch(command string, args []string) error {
	switch command {
	case "plan":
		return cmdPlan(args)
	case "show":
		return cmdShow(args)
	case "list":
		return cmdList(args)
	case "replace":
		return cmdReplace(args)
	case "add-language":
		return cmdAddLanguage(args)
	case "validate":
		return cmdValidate(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fault.New(fault.Invalid, fault.CodeInvalidArgument, "unknown command %q", command)
	}
}

// buildApp loads config and wires the pipeline with console-only logging.
func buildApp(configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err, "failed to load config")
	}
	cleanup, err := logging.Init(&cfg.Log)
	if err != nil {
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err, "failed to initialize logging")
	}
	_ = cleanup // process exit closes the log files
	return app.Build(cfg)
}

func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("config", "configs/wayfarer.yaml", "path to the config file")
}

func cmdPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := commonFlags(fs)
	city := fs.String("city", "", "city to plan (required)")
	days := fs.Int("days", 3, "trip length in days")
	pace := fs.String("pace", "normal", "pace: relaxed, normal, packed")
	interests := fs.String("interests", "", "comma-separated interests")
	mustSee := fs.String("must-see", "", "comma-separated must-see POIs")
	avoid := fs.String("avoid", "", "comma-separated POIs to avoid")
	walking := fs.String("walking", "moderate", "walking tolerance: low, moderate, high")
	indoorOutdoor := fs.String("indoor-outdoor", "balanced", "preference: indoor, outdoor, balanced")
	startLocation := fs.String("start-location", "", "address or place to start each day near")
	endLocation := fs.String("end-location", "", "address or place to end the trip near")
	mode := fs.String("mode", "ilp", "sequencing mode: simple, ilp")
	startDate := fs.String("start-date", "", "trip start date (YYYY-MM-DD)")
	language := fs.String("language", "en", "tour language")
	user := fs.String("user", "", "user recorded in the version history")
	fs.Parse(args)

	params := model.PlanParams{
		City:             *city,
		Days:             *days,
		Pace:             model.Pace(*pace),
		Interests:        splitList(*interests),
		MustSee:          splitList(*mustSee),
		Avoid:            splitList(*avoid),
		WalkingTolerance: model.WalkingTolerance(*walking),
		IndoorOutdoor:    model.IndoorOutdoor(*indoorOutdoor),
		StartLocation:    *startLocation,
		EndLocation:      *endLocation,
		Mode:             model.PlanMode(*mode),
		Language:         *language,
	}
	if *startDate != "" {
		d, err := model.ParseDate(*startDate)
		if err != nil {
			return fault.Wrap(fault.Invalid, fault.CodeInvalidArgument, err, "invalid start date")
		}
		params.StartDate = d
	}

	application, err := buildApp(*configPath)
	if err != nil {
		return err
	}
	defer application.Close()

	tour, err := application.Planner.Plan(context.Background(), params, *user)
	if err != nil {
		return err
	}
	printTour(tour)
	return nil
}

func cmdShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := commonFlags(fs)
	id := fs.String("id", "", "tour id (required)")
	language := fs.String("language", "en", "tour language")
	version := fs.Int("version", 0, "specific version (default: current)")
	fs.Parse(args)

	application, err := buildApp(*configPath)
	if err != nil {
		return err
	}
	defer application.Close()

	var tour *model.Tour
	if *version > 0 {
		tour, err = application.Tours.LoadVersion(*id, *language, *version)
	} else {
		tour, err = application.Tours.Load(*id, *language)
	}
	if err != nil {
		return err
	}
	printTour(tour)
	return nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := commonFlags(fs)
	city := fs.String("city", "", "filter by city")
	fs.Parse(args)

	application, err := buildApp(*configPath)
	if err != nil {
		return err
	}
	defer application.Close()

	summaries, err := application.Tours.List(*city)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no tours stored")
		return nil
	}
	for _, s := range summaries {
		var langs []string
		for lang, state := range s.Languages {
			langs = append(langs, fmt.Sprintf("%s@%s", lang, state.VersionString))
		}
		fmt.Printf("%-44s  %-12s  %s\n", s.ID, s.City, strings.Join(langs, " "))
	}
	return nil
}

func cmdReplace(args []string) error {
	fs := flag.NewFlagSet("replace", flag.ExitOnError)
	configPath := commonFlags(fs)
	id := fs.String("id", "", "tour id (required)")
	language := fs.String("language", "en", "tour language")
	original := fs.String("original", "", "POI currently in the tour (required)")
	replacement := fs.String("replacement", "", "backup POI to swap in (required)")
	day := fs.Int("day", 0, "day the original is on (optional check)")
	mode := fs.String("mode", "reoptimize", "edit mode: simple, reoptimize")
	user := fs.String("user", "", "user recorded in the version history")
	fs.Parse(args)

	application, err := buildApp(*configPath)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Reopt.Replace(context.Background(), *id, *language, reopt.Mode(*mode),
		[]reopt.Replacement{{Original: *original, Replacement: *replacement, Day: *day}}, *user)
	if err != nil {
		return err
	}
	fmt.Printf("replaced %q with %q (tier %s, now version %d)\n\n",
		*original, *replacement, res.Tier, res.Version)
	printTour(res.Tour)
	return nil
}

func cmdAddLanguage(args []string) error {
	fs := flag.NewFlagSet("add-language", flag.ExitOnError)
	configPath := commonFlags(fs)
	id := fs.String("id", "", "tour id (required)")
	language := fs.String("language", "", "language to add (required)")
	user := fs.String("user", "", "user recorded in the version history")
	fs.Parse(args)

	application, err := buildApp(*configPath)
	if err != nil {
		return err
	}
	defer application.Close()

	tour, err := application.Planner.AddLanguage(context.Background(), *id, *language, *user)
	if err != nil {
		return err
	}
	fmt.Printf("added language %s to %s\n", tour.Language, tour.ID)
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := commonFlags(fs)
	city := fs.String("city", "", "city to validate (required)")
	fs.Parse(args)

	application, err := buildApp(*configPath)
	if err != nil {
		return err
	}
	defer application.Close()

	issues, err := application.Planner.ValidateCity(*city)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Printf("%s: catalog is consistent\n", *city)
		return nil
	}
	errors := 0
	for _, issue := range issues {
		target := issue.POI
		if target == "" {
			target = issue.Group
		}
		fmt.Printf("%-8s %-28s %s\n", issue.Severity, target, issue.Message)
		if issue.Severity == "error" {
			errors++
		}
	}
	if errors > 0 {
		// Planning against a broken catalog is infeasible, not a usage error.
		return fault.New(fault.Infeasible, fault.CodeInfeasible,
			"%d catalog errors in %s", errors, *city)
	}
	return nil
}

// splitList parses a comma-separated flag value into its non-empty,
// whitespace-trimmed elements.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printTour(t *model.Tour) {
	fmt.Printf("%s (%s, v%d, %s)\n", t.ID, t.City, t.Version, t.Language)
	for _, day := range t.Days {
		fmt.Printf("\nDay %d\n", day.Number)
		for _, v := range day.Visits {
			fmt.Printf("  %-32s %4.1fh", v.POI, v.EstimatedHours)
			if v.WalkToNextKm > 0 {
				fmt.Printf("  -> %.1f km, %.0f min walk", v.WalkToNextKm, v.WalkToNextMinutes)
			}
			fmt.Println()
		}
	}
	fmt.Printf("\nscores: distance %.2f, coherence %.2f, overall %.2f (%.1f km total)\n",
		t.Scores.DistanceScore, t.Scores.CoherenceScore, t.Scores.OverallScore, t.Scores.TotalDistanceKm)
	if t.SolverStats != nil {
		fmt.Printf("solver: %s in %.1fs\n", t.SolverStats.Status, t.SolverStats.SolveTimeSeconds)
	}
	if len(t.BackupPOIs) > 0 {
		fmt.Println("\nbackups:")
		for _, day := range t.Days {
			for _, v := range day.Visits {
				for _, b := range t.BackupPOIs[v.POI] {
					fmt.Printf("  %s -> %s (%.2f, %s)\n", v.POI, b.POI, b.SimilarityScore, b.Reason)
				}
			}
		}
	}
}

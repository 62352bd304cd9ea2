package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"noir-registry/internal/adapters"
	"noir-registry/internal/app"
	"noir-registry/internal/shared"
	"noir-registry/internal/types"
)

type addOptions struct {
	Tag          string
	ManifestPath string
	Registry     string
	NoFetch      bool
}

func newAddCommand() *cobra.Command {
	opts := addOptions{}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a registry package to Nargo.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "Version tag to pin (default: latest known release)")
	cmd.Flags().StringVar(&opts.ManifestPath, "manifest-path", "", "Path to Nargo.toml or its directory")
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "Registry API base URL")
	cmd.Flags().BoolVar(&opts.NoFetch, "no-fetch", false, "Skip running nargo check after editing")
	return cmd
}

func runAdd(ctx context.Context, cmd *cobra.Command, name string, opts addOptions) error {
	service := newAppService()
	if flagChanged(cmd, "registry") {
		service.Registry = newRegistryClient(opts.Registry)
	}
	result, err := service.AddDependency(ctx, app.AddRequest{
		Name:         name,
		ManifestPath: opts.ManifestPath,
		Tag:          opts.Tag,
		NoFetch:      opts.NoFetch,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	dep := result.Dependency
	if dep.Tag != "" {
		fmt.Fprintf(out, "added %s (%s @ %s) to %s\n", dep.Key, dep.Git, dep.Tag, result.ManifestPath)
	} else {
		fmt.Fprintf(out, "added %s (%s) to %s\n", dep.Key, dep.Git, result.ManifestPath)
	}
	if result.Checked {
		fmt.Fprintln(out, "nargo check passed")
	}
	printWarnings(cmd.ErrOrStderr(), result.Warnings)
	return nil
}

type removeOptions struct {
	ManifestPath string
	Clean        bool
}

func newRemoveCommand() *cobra.Command {
	opts := removeOptions{}
	cmd := &cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove dependencies from Nargo.toml",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ManifestPath, "manifest-path", "", "Path to Nargo.toml or its directory")
	cmd.Flags().BoolVar(&opts.Clean, "clean", false, "Also delete the cached source checkout")
	return cmd
}

func runRemove(ctx context.Context, cmd *cobra.Command, names []string, opts removeOptions) error {
	service := newAppService()
	result, err := service.RemoveDependencies(ctx, app.RemoveRequest{
		Names:        names,
		ManifestPath: opts.ManifestPath,
		Purge:        opts.Clean,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var warnings []string
	for _, outcome := range result.Outcomes {
		switch {
		case outcome.Removed:
			fmt.Fprintf(out, "removed %s from %s\n", outcome.Key, result.ManifestPath)
		case outcome.Err != nil:
			warnings = append(warnings, shared.ErrorMessage(outcome.Err))
		}
		if outcome.Warning != "" {
			warnings = append(warnings, outcome.Warning)
		}
	}
	printWarnings(cmd.ErrOrStderr(), warnings)
	if missing := result.Missing(); len(missing) > 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("not in %s: %s", result.ManifestPath, strings.Join(missing, ", ")))
	}
	return nil
}

type infoOptions struct {
	Registry string
}

func newInfoCommand() *cobra.Command {
	opts := infoOptions{}
	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show a registry package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "Registry API base URL")
	return cmd
}

func runInfo(ctx context.Context, cmd *cobra.Command, name string, opts infoOptions) error {
	service := newAppService()
	if flagChanged(cmd, "registry") {
		service.Registry = newRegistryClient(opts.Registry)
	}
	detail, err := service.PackageInfo(ctx, name)
	if err != nil {
		return err
	}
	printPackageDetail(cmd.OutOrStdout(), detail)
	return nil
}

type searchOptions struct {
	Registry string
	Sort     string
	Limit    int
	Keyword  string
	Category string
}

func newSearchCommand() *cobra.Command {
	opts := searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search the registry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			return runSearch(cmd.Context(), cmd, term, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "Registry API base URL")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "Sort order: relevance, stars, name, newest or updated")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of results")
	cmd.Flags().StringVar(&opts.Keyword, "keyword", "", "Only packages with this keyword")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Only packages in this category slug")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, term string, opts searchOptions) error {
	service := newAppService()
	if flagChanged(cmd, "registry") {
		service.Registry = newRegistryClient(opts.Registry)
	}
	sortOrder := types.SortOrder(opts.Sort)
	if sortOrder == "" && strings.TrimSpace(term) != "" {
		sortOrder = types.SortRelevance
	}
	packages, err := service.SearchRegistry(ctx, term, types.ListQuery{
		Sort:     sortOrder,
		Limit:    opts.Limit,
		Keyword:  opts.Keyword,
		Category: opts.Category,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(packages) == 0 {
		fmt.Fprintln(out, "no packages found")
		return nil
	}
	for _, pkg := range packages {
		fmt.Fprintf(out, "%s (%d stars)", pkg.Name, pkg.GithubStars)
		if latest := shared.StringValue(pkg.LatestVersion); latest != "" {
			fmt.Fprintf(out, " %s", latest)
		}
		fmt.Fprintln(out)
		if description := shared.StringValue(pkg.Description); description != "" {
			fmt.Fprintf(out, "  %s\n", description)
		}
	}
	return nil
}

func newRegistryClient(baseURL string) *adapters.RegistryClientAdapter {
	return adapters.NewRegistryClientAdapter(
		baseURL,
		viper.GetDuration("http.timeout"),
		viper.GetInt("http.retries"),
		viper.GetDuration("http.retry_delay"),
	)
}

func printPackageDetail(out io.Writer, detail types.PackageDetail) {
	fmt.Fprintf(out, "name: %s\n", detail.Name)
	if description := shared.StringValue(detail.Description); description != "" {
		fmt.Fprintf(out, "description: %s\n", description)
	}
	fmt.Fprintf(out, "repository: %s\n", detail.GithubRepositoryURL)
	if homepage := shared.StringValue(detail.Homepage); homepage != "" {
		fmt.Fprintf(out, "homepage: %s\n", homepage)
	}
	if license := shared.StringValue(detail.License); license != "" {
		fmt.Fprintf(out, "license: %s\n", license)
	}
	fmt.Fprintf(out, "owner: %s\n", detail.OwnerGithubUsername)
	fmt.Fprintf(out, "stars: %d\n", detail.GithubStars)
	if latest := shared.StringValue(detail.LatestVersion); latest != "" {
		fmt.Fprintf(out, "latest: %s\n", latest)
	}
	if detail.Category != nil {
		fmt.Fprintf(out, "category: %s\n", detail.Category.Name)
	}
	if len(detail.Keywords) > 0 {
		fmt.Fprintf(out, "keywords: %s\n", strings.Join(detail.Keywords, ", "))
	}
	if len(detail.Versions) == 0 {
		return
	}
	fmt.Fprintln(out, "versions:")
	for _, version := range detail.Versions {
		fmt.Fprintf(out, "- %s (%s)", version.Version, version.PublishedAt.Format("2006-01-02"))
		if version.FileSize != nil {
			fmt.Fprintf(out, " %s", units.HumanSize(float64(*version.FileSize)))
		}
		fmt.Fprintln(out)
	}
}

func printWarnings(out io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
}

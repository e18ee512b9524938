// Command arayctl is the command-line client for the Aray Forum API. It wires
// the config, the request gateway, the persisted session, the query cache,
// and the resource services, then dispatches one subcommand per invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"aray-forum/client/internal/cache"
	"aray-forum/client/internal/config"
	"aray-forum/client/internal/gateway"
	postdomain "aray-forum/client/internal/posts/domain"
	postservice "aray-forum/client/internal/posts/service"
	sessiondomain "aray-forum/client/internal/session/domain"
	"aray-forum/client/internal/session/storage"
	"aray-forum/client/internal/session/store"
	"aray-forum/client/internal/telemetry/otel"
	uploadservice "aray-forum/client/internal/upload/service"
	userservice "aray-forum/client/internal/users/service"
)

const usage = `usage: arayctl <command> [flags]

Auth:
  register login logout whoami change-password

Posts:
  feed post delete like unlike repost unrepost comments comment search-posts

Users:
  user update-profile follow unfollow followers following search-users
  suggestions notifications mark-read

Media:
  upload

Other:
  health
`

// app bundles the wired client layers for subcommand handlers.
type app struct {
	gw      *gateway.Gateway
	session *store.Store
	posts   *postservice.Service
	users   *userservice.Service
	uploads *uploadservice.Service
}

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "arayctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Print(usage)
		return nil
	}
	command, args := args[0], args[1:]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "arayctl", cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		if err := providers.Shutdown(ctx); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()

	retry := gateway.RetryPolicy{MaxRetries: cfg.ReadRetryMax, BaseDelay: cfg.RetryBaseDelay()}
	gw := gateway.New(cfg.APIBaseURL, cfg.Timeout(), retry, otelhttp.NewTransport(nil))

	sessionPath, err := cfg.SessionPath()
	if err != nil {
		return fmt.Errorf("session path: %w", err)
	}
	sessions := store.New(gw, storage.NewFileStore(sessionPath))
	sessions.OnSignedOut(func() {
		fmt.Fprintln(os.Stderr, "session expired, please log in again")
	})
	gw.OnUnauthorized(sessions.HandleUnauthorized)
	sessions.CheckAuth(ctx)

	c := cache.New(cfg.StaleTTL(), cfg.RetentionTTL())
	a := &app{
		gw:      gw,
		session: sessions,
		posts:   postservice.New(gw, c, cfg.PostsPerPage),
		users:   userservice.New(gw, c, sessions, cfg.UsersPerPage),
		uploads: uploadservice.New(gw, sessions),
	}

	switch command {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.session.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "whoami":
		return a.whoami()
	case "change-password":
		return a.changePassword(ctx, args)
	case "feed":
		return a.feed(ctx, args)
	case "post":
		return a.createPost(ctx, args)
	case "delete":
		return a.deletePost(ctx, args)
	case "like":
		return a.react(ctx, args, command, a.posts.Like)
	case "unlike":
		return a.react(ctx, args, command, a.posts.Unlike)
	case "repost":
		return a.react(ctx, args, command, a.posts.Repost)
	case "unrepost":
		return a.react(ctx, args, command, a.posts.Unrepost)
	case "comments":
		return a.comments(ctx, args)
	case "comment":
		return a.createComment(ctx, args)
	case "search-posts":
		return a.searchPosts(ctx, args)
	case "user":
		return a.user(ctx, args)
	case "update-profile":
		return a.updateProfile(ctx, args)
	case "follow":
		return a.setFollow(ctx, args, command, a.users.Follow)
	case "unfollow":
		return a.setFollow(ctx, args, command, a.users.Unfollow)
	case "followers":
		return a.listGraph(ctx, args, "followers", a.users.Followers)
	case "following":
		return a.listGraph(ctx, args, "following", a.users.Following)
	case "search-users":
		return a.searchUsers(ctx, args)
	case "suggestions":
		return a.suggestions(ctx)
	case "notifications":
		return a.notifications(ctx, args)
	case "mark-read":
		return a.markRead(ctx, args)
	case "upload":
		return a.upload(ctx, args)
	case "health":
		if err := a.gw.Health(ctx); err != nil {
			return err
		}
		fmt.Println("healthy")
		return nil
	default:
		return fmt.Errorf("unknown command %q (see arayctl help)", command)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := a.session.Register(ctx, store.Registration{
		Name:     *name,
		Email:    *email,
		Username: *username,
		Password: *password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered and logged in as @%s\n", sess.User.Username)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("user", "", "email or username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := a.session.Login(ctx, store.Credentials{
		EmailOrUsername: *user,
		Password:        *password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("logged in as @%s\n", sess.User.Username)
	return nil
}

func (a *app) whoami() error {
	sess := a.session.Current()
	if !sess.Valid() {
		return fmt.Errorf("not logged in")
	}
	printUser(*sess.User)
	return nil
}

func (a *app) changePassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ContinueOnError)
	current := fs.String("current", "", "current password")
	updated := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.session.ChangePassword(ctx, *current, *updated); err != nil {
		return err
	}
	fmt.Println("password changed")
	return nil
}

func (a *app) feed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	feedType := fs.String("type", "explore", "feed type: timeline, explore, or user")
	userID := fs.Int("user", 0, "user ID for -type user")
	pages := fs.Int("pages", 1, "number of pages to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := postservice.FeedQuery{Type: postdomain.FeedType(*feedType), UserID: *userID}
	items, hasNext, err := a.posts.Feed(ctx, q)
	if err != nil {
		return err
	}
	for p := 1; p < *pages && hasNext; p++ {
		items, hasNext, err = a.posts.LoadMore(ctx, q)
		if err != nil {
			return err
		}
	}
	for _, post := range items {
		printPost(post)
	}
	if hasNext {
		fmt.Println("-- more available --")
	}
	return nil
}

func (a *app) createPost(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	content := fs.String("content", "", "post content")
	media := fs.String("media", "", "media URL from a previous upload")
	mediaType := fs.String("media-type", "image", "media type for -media")
	if err := fs.Parse(args); err != nil {
		return err
	}
	post, err := a.posts.Create(ctx, *content, *media, *mediaType)
	if err != nil {
		return err
	}
	fmt.Printf("posted #%d\n", post.ID)
	return nil
}

func (a *app) deletePost(ctx context.Context, args []string) error {
	id, err := idArg(args, "delete <post-id>")
	if err != nil {
		return err
	}
	if err := a.posts.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted #%d\n", id)
	return nil
}

func (a *app) react(ctx context.Context, args []string, name string, action func(context.Context, int) error) error {
	id, err := idArg(args, name+" <post-id>")
	if err != nil {
		return err
	}
	if err := action(ctx, id); err != nil {
		return err
	}
	fmt.Printf("%s ok for #%d\n", name, id)
	return nil
}

func (a *app) comments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("comments", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := idArg(fs.Args(), "comments <post-id>")
	if err != nil {
		return err
	}
	comments, pg, err := a.posts.Comments(ctx, id, *page)
	if err != nil {
		return err
	}
	for _, c := range comments {
		fmt.Printf("#%d @%s: %s\n", c.ID, username(c.User), c.Content)
	}
	printPageFooter(pg)
	return nil
}

func (a *app) createComment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	content := fs.String("content", "", "comment content")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := idArg(fs.Args(), "comment <post-id> -content ...")
	if err != nil {
		return err
	}
	c, err := a.posts.CreateComment(ctx, id, *content)
	if err != nil {
		return err
	}
	fmt.Printf("commented #%d on post #%d\n", c.ID, id)
	return nil
}

func (a *app) searchPosts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search-posts", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := strings.Join(fs.Args(), " ")
	items, pg, err := a.posts.Search(ctx, q, *page)
	if err != nil {
		return err
	}
	for _, post := range items {
		printPost(post)
	}
	printPageFooter(pg)
	return nil
}

func (a *app) user(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: arayctl user <id-or-username>")
	}
	u, err := a.users.Get(ctx, args[0])
	if err != nil {
		return err
	}
	printUser(*u)
	return nil
}

func (a *app) updateProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update-profile", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	bio := fs.String("bio", "", "bio")
	location := fs.String("location", "", "location")
	website := fs.String("website", "", "website")
	private := fs.Bool("private", false, "private profile")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only the flags actually given become part of the patch, so unset fields
	// are left alone server-side.
	var patch sessiondomain.UserPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.Name = name
		case "bio":
			patch.Bio = bio
		case "location":
			patch.Location = location
		case "website":
			patch.Website = website
		case "private":
			patch.IsPrivate = private
		}
	})

	u, err := a.users.UpdateMe(ctx, patch)
	if err != nil {
		return err
	}
	printUser(*u)
	return nil
}

func (a *app) setFollow(ctx context.Context, args []string, name string, action func(context.Context, int) error) error {
	id, err := idArg(args, name+" <user-id>")
	if err != nil {
		return err
	}
	if err := action(ctx, id); err != nil {
		return err
	}
	fmt.Printf("%s ok for user #%d\n", name, id)
	return nil
}

func (a *app) listGraph(ctx context.Context, args []string, name string, list func(context.Context, int, int) ([]sessiondomain.User, postdomain.Pagination, error)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := idArg(fs.Args(), name+" <user-id>")
	if err != nil {
		return err
	}
	users, pg, err := list(ctx, id, *page)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("#%d @%s %s\n", u.ID, u.Username, u.Name)
	}
	printPageFooter(pg)
	return nil
}

func (a *app) searchUsers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search-users", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := strings.Join(fs.Args(), " ")
	users, pg, err := a.users.Search(ctx, q, *page)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("#%d @%s %s\n", u.ID, u.Username, u.Name)
	}
	printPageFooter(pg)
	return nil
}

func (a *app) suggestions(ctx context.Context) error {
	users, err := a.users.Suggestions(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("#%d @%s %s\n", u.ID, u.Username, u.Name)
	}
	return nil
}

func (a *app) notifications(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	notifs, pg, err := a.users.Notifications(ctx, *page)
	if err != nil {
		return err
	}
	for _, n := range notifs {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		fmt.Printf("%s #%d [%s] %s\n", marker, n.ID, n.Type, n.Message)
	}
	printPageFooter(pg)
	return nil
}

func (a *app) markRead(ctx context.Context, args []string) error {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid notification ID %q", arg)
		}
		ids = append(ids, id)
	}
	if err := a.users.MarkNotificationsRead(ctx, ids); err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("all notifications marked read")
	} else {
		fmt.Printf("%d notifications marked read\n", len(ids))
	}
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	kind := fs.String("kind", "image", "upload kind: image, avatar, or banner")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: arayctl upload [-kind image|avatar|banner] <file>")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var res *uploadservice.Result
	switch *kind {
	case "image":
		res, err = a.uploads.Image(ctx, filepath.Base(path), f)
	case "avatar":
		res, err = a.uploads.Avatar(ctx, filepath.Base(path), f)
	case "banner":
		res, err = a.uploads.Banner(ctx, filepath.Base(path), f)
	default:
		return fmt.Errorf("unknown upload kind %q", *kind)
	}
	if err != nil {
		return err
	}
	fmt.Println(res.FileURL)
	return nil
}

func idArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: arayctl %s", usage)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", args[0])
	}
	return id, nil
}

func username(u *sessiondomain.User) string {
	if u == nil {
		return "?"
	}
	return u.Username
}

func printPost(p postdomain.Post) {
	header := fmt.Sprintf("#%d @%s", p.ID, username(p.User))
	if p.IsRepost && p.OriginalPost != nil {
		fmt.Printf("%s reposted #%d @%s\n", header, p.OriginalPost.ID, username(p.OriginalPost.User))
		p = *p.OriginalPost
	} else {
		fmt.Println(header)
	}
	fmt.Printf("  %s\n", p.Content)
	if p.MediaURL != "" {
		fmt.Printf("  media: %s\n", p.MediaURL)
	}
	fmt.Printf("  %d likes, %d reposts, %d comments\n", p.LikeCount, p.RepostCount, p.CommentCount)
}

func printUser(u sessiondomain.User) {
	fmt.Printf("#%d @%s %s\n", u.ID, u.Username, u.Name)
	if u.Bio != "" {
		fmt.Printf("  %s\n", u.Bio)
	}
	if u.Location != "" {
		fmt.Printf("  location: %s\n", u.Location)
	}
	if u.Website != "" {
		fmt.Printf("  website: %s\n", u.Website)
	}
	fmt.Printf("  %d followers, %d following, %d posts\n", u.FollowersCount, u.FollowingCount, u.PostsCount)
}

func printPageFooter(pg postdomain.Pagination) {
	if pg.Pages > 1 {
		fmt.Printf("-- page %d of %d (%d total) --\n", pg.Page, pg.Pages, pg.Total)
	}
}

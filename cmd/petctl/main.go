// Command petctl is a terminal client for the marketplace API.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/iliyamo/pet-care-marketplace/internal/access"
	"github.com/iliyamo/pet-care-marketplace/internal/client"
	"github.com/iliyamo/pet-care-marketplace/internal/config"
	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
	"github.com/iliyamo/pet-care-marketplace/internal/notice"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

const usage = `usage: petctl [--api URL] [--state FILE] <command> [args]

commands:
  signup --email E --password P   create an account
  login --email E --password P    sign in
  logout                          sign out
  whoami                          show the session and resolved role
  visit PATH                      check whether PATH is reachable
  vets                            list verified vets
  onboard --name N [--specialty S] --license L
  online | offline                set vet availability
  pending                         list unverified vets (admin)
  verify VET_ID                   verify a vet (admin)
  rooms                           list your consultations
  open VET_ID                     start a consultation
  chat ROOM_ID                    join a consultation; /file PATH sends a file
`

type app struct {
	api   *client.Client
	state *client.StateFile
	notes notice.Notifier
}

func main() {
	log.SetFlags(0)
	config.LoadDotEnv(".env")

	global := flag.NewFlagSet("petctl", flag.ExitOnError)
	global.SetInterspersed(false)
	apiURL := global.String("api", envOr("PETCARE_API_URL", "http://localhost:8080"), "API base URL")
	statePath := global.String("state", envOr("PETCARE_STATE", client.DefaultStatePath()), "state file")
	verbose := global.BoolP("verbose", "v", false, "log internal errors")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	state := client.NewStateFile(*statePath)
	a := &app{
		api:   client.New(*apiURL, client.WithSessionStore(state)),
		state: state,
		notes: notice.Func(func(n notice.Notice) { fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Text) }),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := global.Arg(0), global.Args()[1:]
	if err := a.run(ctx, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "petctl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signup", "login":
		return a.signIn(ctx, cmd, args)
	case "logout":
		return a.withResolver(ctx, nil, func(r *session.Resolver) error { return r.SignOut(ctx) })
	case "whoami":
		return a.whoami(ctx)
	case "visit":
		if len(args) != 1 {
			return errors.New("expected a path")
		}
		return a.visit(ctx, args[0])
	case "vets":
		return a.vets(ctx)
	case "onboard":
		return a.onboard(ctx, args)
	case "online", "offline":
		return a.availability(ctx, cmd == "online")
	case "pending":
		return a.pending(ctx)
	case "verify":
		if len(args) != 1 {
			return errors.New("expected a vet id")
		}
		v, err := a.api.VerifyVet(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("verified %s (%s)\n", v.FullName, v.Email)
		return nil
	case "rooms":
		return a.rooms(ctx)
	case "open":
		if len(args) != 1 {
			return errors.New("expected a vet id")
		}
		room, err := a.api.OpenConsultation(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(room.ID)
		return nil
	case "chat":
		if len(args) != 1 {
			return errors.New("expected a consultation id")
		}
		return a.chat(ctx, args[0])
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) signIn(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("PETCARE_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("--email and --password are required")
	}
	sign := a.api.SignIn
	if cmd == "signup" {
		sign = a.api.SignUp
	}
	if _, err := sign(ctx, *email, *password); err != nil {
		return err
	}
	return a.whoami(ctx)
}

// withResolver runs fn against a resolver that has finished its initial
// resolution. nav, when set, receives redirects.
func (a *app) withResolver(ctx context.Context, nav session.Navigator, fn func(*session.Resolver) error) error {
	opts := []session.Option{session.WithNotifier(a.notes), session.WithLocalStore(a.state)}
	if nav != nil {
		opts = append(opts, session.WithNavigator(nav))
	}
	r := session.NewResolver(a.api, a.api, opts...)
	defer r.Close()
	r.Initialize(ctx)
	return fn(r)
}

func (a *app) whoami(ctx context.Context) error {
	return a.withResolver(ctx, nil, func(r *session.Resolver) error {
		st := r.State()
		if st.Session == nil {
			fmt.Println("not signed in")
			return nil
		}
		fmt.Printf("%s (user %s) role=%s\n", st.Session.Email, st.Session.UserID, st.Role)
		if id, ok := a.state.Get(session.VetIDKey); ok && st.Role == session.RoleVet {
			fmt.Printf("vet id %s\n", id)
		}
		return nil
	})
}

func (a *app) visit(ctx context.Context, path string) error {
	return a.withResolver(ctx, nil, func(r *session.Resolver) error {
		g := access.NewGuard(r, session.NavigatorFunc(func(p string) { fmt.Printf("redirect -> %s\n", p) }), a.notes)
		defer g.Stop()
		if got := g.Visit(path); got == path {
			fmt.Printf("%s: allowed as %s\n", path, r.State().Role)
		}
		return nil
	})
}

func (a *app) vets(ctx context.Context) error {
	vets, err := a.api.ListVets(ctx)
	if err != nil {
		return err
	}
	for _, v := range vets {
		status := "offline"
		if v.IsOnline {
			status = "online"
		}
		fmt.Printf("%s  %-24s %-16s %s\n", v.ID, v.FullName, v.Specialty, status)
	}
	return nil
}

func (a *app) onboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("onboard", flag.ContinueOnError)
	name := fs.String("name", "", "full name")
	specialty := fs.String("specialty", "", "specialty")
	license := fs.String("license", "", "license number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := a.api.OnboardVet(ctx, *name, *specialty, *license)
	if err != nil {
		return err
	}
	fmt.Printf("registered vet %s, awaiting verification\n", v.ID)
	return nil
}

func (a *app) availability(ctx context.Context, online bool) error {
	return a.withResolver(ctx, nil, func(r *session.Resolver) error {
		if r.State().Role != session.RoleVet {
			return errors.New(access.VetRequired)
		}
		id, ok := a.state.Get(session.VetIDKey)
		if !ok {
			return errors.New("vet id unknown; sign in again")
		}
		return a.api.SetVetAvailability(ctx, id, online)
	})
}

func (a *app) pending(ctx context.Context) error {
	vets, err := a.api.PendingVets(ctx, false)
	if err != nil {
		return err
	}
	for _, v := range vets {
		fmt.Printf("%s  %-24s %-28s license %s\n", v.ID, v.FullName, v.Email, v.LicenseNumber)
	}
	return nil
}

func (a *app) rooms(ctx context.Context) error {
	rooms, err := a.api.Consultations(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		fmt.Printf("%s  vet %s  %s  %s\n", r.ID, r.VetID, r.Status, r.CreatedAt.Format(time.RFC822))
	}
	return nil
}

func (a *app) chat(ctx context.Context, roomID string) error {
	s, err := a.api.GetSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return errors.New("not signed in")
	}
	cfg := consultation.Config{Store: a.api, Feed: a.api, Files: a.api, Notifier: a.notes, SenderID: s.UserID}
	return consultation.Use(ctx, cfg, roomID, func(ch *consultation.Channel) error {
		var mu sync.Mutex
		printed := 0
		show := func(ms []consultation.Message) {
			mu.Lock()
			defer mu.Unlock()
			for ; printed < len(ms); printed++ {
				printMessage(ms[printed], s.UserID)
			}
		}
		stopWatch := ch.Watch(show)
		defer stopWatch()
		show(ch.Messages())

		lines := make(chan string)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				lines <- sc.Text()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := send(ctx, ch, line); err != nil {
					fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
				}
			}
		}
	})
}

func send(ctx context.Context, ch *consultation.Channel, line string) error {
	if p, ok := strings.CutPrefix(line, "/file "); ok {
		p = strings.TrimSpace(p)
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		return ch.SendFile(ctx, filepath.Base(p), f, mime.TypeByExtension(filepath.Ext(p)))
	}
	return ch.SendMessage(ctx, line)
}

func printMessage(m consultation.Message, me string) {
	who := "them"
	if m.SenderID == me {
		who = "you"
	}
	switch m.Type {
	case consultation.TypeFile:
		fmt.Printf("%s %-4s [file] %s %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content, m.FileURL)
	default:
		fmt.Printf("%s %-4s %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

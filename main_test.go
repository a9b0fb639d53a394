package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSettings(t *testing.T) {
	Convey("When the environment is consulted", t, func() {
		flags := settings{host: "", port: "8080", config: "./config.yaml"}

		env := map[string]string{
			ENV_HOST:   "127.0.0.1",
			ENV_PORT:   "9000",
			ENV_CONFIG: "/etc/mdpviz.yaml",
		}
		getenv := func(key string) string { return env[key] }

		Convey("Unset variables keep the flag values", func() {
			set := withEnv(flags, func(string) string { return "" }, nil)
			So(set, ShouldResemble, flags)
			So(set.addr(), ShouldEqual, ":8080")
		})

		Convey("Set variables override flag defaults", func() {
			set := withEnv(flags, getenv, nil)
			So(set.addr(), ShouldEqual, "127.0.0.1:9000")
			So(set.config, ShouldEqual, "/etc/mdpviz.yaml")
		})

		Convey("Flags passed on the command line win over the environment", func() {
			fs := flag.NewFlagSet("mdpviz", flag.ContinueOnError)
			fs.String("host", "", "")
			port := fs.String("port", "8080", "")
			fs.String("config", "./config.yaml", "")
			So(fs.Parse([]string{"-port", "7000"}), ShouldBeNil)

			passed := passedFlags(fs)
			So(passed, ShouldResemble, map[string]bool{"port": true})

			set := withEnv(settings{port: *port, config: "./config.yaml"}, getenv, passed)
			So(set.port, ShouldEqual, "7000")
			So(set.host, ShouldEqual, "127.0.0.1")
			So(set.config, ShouldEqual, "/etc/mdpviz.yaml")
		})
	})
}

func TestHeadless(t *testing.T) {
	Convey("Given a short headless run of the sample config", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		So(os.WriteFile(path, []byte(`kind: training
def:
  mode: automatic_rl
  hyperParams:
    - key: episodes
      val: 20
    - key: seed
      val: 3
`), 0o600), ShouldBeNil)

		*headless = true
		defer func() { *headless = false }()

		Convey("It trains and prints without error", func() {
			err := runApp(context.Background(), settings{config: path})
			So(err, ShouldBeNil)
		})

		Convey("A missing config is an error", func() {
			err := runApp(context.Background(), settings{config: filepath.Join(dir, "nope.yaml")})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("A missing .env file is not an error", t, func() {
		wd, err := os.Getwd()
		So(err, ShouldBeNil)
		So(os.Chdir(t.TempDir()), ShouldBeNil)
		defer os.Chdir(wd)
		So(loadEnv(), ShouldBeNil)
	})
}

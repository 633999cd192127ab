package buildpack

import (
	"strings"
	"testing"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
)

func files(names ...string) []domain.SourceFile {
	out := make([]domain.SourceFile, 0, len(names))
	for _, n := range names {
		out = append(out, domain.SourceFile{Path: n, Content: ""})
	}
	return out
}

func TestDetectNodeWinsOverOtherMarkers(t *testing.T) {
	sets := [][]domain.SourceFile{
		files("package.json", "index.js"),
		files("requirements.txt", "package.json"),
		files("go.mod", "requirements.txt", "package.json"),
	}
	for _, set := range sets {
		res := Detect(set)
		if res.Framework != FrameworkNode {
			t.Fatalf("expected node, got %s", res.Framework)
		}
		if !strings.Contains(res.StartCommand, "npm start") {
			t.Fatalf("expected npm start, got %q", res.StartCommand)
		}
	}
}

func TestDetectPythonAndGo(t *testing.T) {
	res := Detect(files("requirements.txt", "main.py"))
	if res.Framework != FrameworkPython {
		t.Fatalf("expected python, got %s", res.Framework)
	}
	if res.StartCommand != "python main.py" {
		t.Fatalf("unexpected python start %q", res.StartCommand)
	}
	if got := Detect(files("go.mod", "main.go")).Framework; got != FrameworkGo {
		t.Fatalf("expected go, got %s", got)
	}
}

func TestDetectStaticFallback(t *testing.T) {
	for _, set := range [][]domain.SourceFile{nil, files("index.html", "style.css"), files("web/package.json")} {
		res := Detect(set)
		if res.Framework != FrameworkStatic {
			t.Fatalf("expected static, got %s", res.Framework)
		}
		if res.StartCommand == "" {
			t.Fatalf("static result must carry a start command")
		}
	}
}

func TestDetectNodeBuildScriptAndPackageManager(t *testing.T) {
	set := []domain.SourceFile{
		{Path: "package.json", Content: `{"packageManager":"pnpm@9.1.0","scripts":{"build":"vite build","start":"node server.js"}}`},
	}
	res := Detect(set)
	if res.BuildCommand != "npm run build" {
		t.Fatalf("expected build command, got %q", res.BuildCommand)
	}
	if res.PackageManager != "pnpm" {
		t.Fatalf("expected pnpm, got %q", res.PackageManager)
	}
	if Detect(files("package.json", "yarn.lock")).PackageManager != "yarn" {
		t.Fatalf("expected yarn from lock file")
	}
}

func TestDockerfileRendering(t *testing.T) {
	df := Dockerfile(Detect(files("package.json", "index.js")))
	for _, want := range []string{"FROM node:", "EXPOSE 3000", `CMD ["npm","start"]`} {
		if !strings.Contains(df, want) {
			t.Fatalf("node dockerfile missing %q:\n%s", want, df)
		}
	}
	df = Dockerfile(Detect(files("go.mod")))
	if !strings.Contains(df, `CMD ["./app"]`) {
		t.Fatalf("go dockerfile missing entrypoint:\n%s", df)
	}
	if !Detect(files("Dockerfile", "package.json")).HasDockerfile {
		t.Fatalf("expected user Dockerfile to be detected")
	}
}

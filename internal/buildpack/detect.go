// Package buildpack classifies generated source trees and renders Dockerfiles for them.
package buildpack

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
)

const (
	FrameworkNode   = "node"
	FrameworkPython = "python"
	FrameworkGo     = "go"
	FrameworkStatic = "static"

	// AppPort is the port every generated image listens on.
	AppPort = 3000
)

// Result is the outcome of Detect.
type Result struct {
	Framework      string
	BuildCommand   string
	StartCommand   string
	PackageManager string
	Port           int
	// HasDockerfile is set when the sources ship their own root Dockerfile.
	HasDockerfile bool
}

type packageManager string

const (
	pmNPM  packageManager = "npm"
	pmYarn packageManager = "yarn"
	pmPNPM packageManager = "pnpm"
)

type npmManifest struct {
	PackageManager string            `json:"packageManager"`
	Scripts        map[string]string `json:"scripts"`
}

// Detect inspects root-level marker files. package.json wins over
// requirements.txt, which wins over go.mod; anything else is served as static files.
func Detect(files []domain.SourceFile) Result {
	index := indexRoot(files)
	res := Result{Port: AppPort}
	for _, f := range files {
		if strings.TrimPrefix(path.Clean("/"+f.Path), "/") == "Dockerfile" {
			res.HasDockerfile = true
		}
	}

	switch {
	case has(index, "package.json"):
		manifest := parseManifest(index["package.json"])
		pm := detectPackageManager(index, manifest)
		res.Framework = FrameworkNode
		res.PackageManager = string(pm)
		res.StartCommand = "npm start"
		if _, ok := manifest.Scripts["build"]; ok {
			res.BuildCommand = "npm run build"
		}
	case has(index, "requirements.txt"):
		res.Framework = FrameworkPython
		res.PackageManager = "pip"
		res.BuildCommand = "pip install --no-cache-dir -r requirements.txt"
		res.StartCommand = "python " + pythonEntrypoint(index)
	case has(index, "go.mod"):
		res.Framework = FrameworkGo
		res.BuildCommand = "go build -o app ."
		res.StartCommand = "./app"
	default:
		res.Framework = FrameworkStatic
		res.StartCommand = "npx --yes serve -s . -l 3000"
	}
	return res
}

func indexRoot(files []domain.SourceFile) map[string]string {
	out := make(map[string]string, len(files))
	for _, f := range files {
		p := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(f.Path)), "/")
		if p == "" || strings.Contains(p, "/") {
			continue
		}
		out[strings.ToLower(p)] = f.Content
	}
	return out
}

func has(index map[string]string, name string) bool {
	_, ok := index[name]
	return ok
}

func parseManifest(content string) npmManifest {
	var m npmManifest
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return npmManifest{}
	}
	if m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	return m
}

func detectPackageManager(index map[string]string, manifest npmManifest) packageManager {
	declared := strings.ToLower(strings.TrimSpace(manifest.PackageManager))
	if i := strings.Index(declared, "@"); i > 0 {
		declared = declared[:i]
	}
	switch declared {
	case "yarn":
		return pmYarn
	case "pnpm":
		return pmPNPM
	case "npm":
		return pmNPM
	}
	switch {
	case has(index, "yarn.lock"):
		return pmYarn
	case has(index, "pnpm-lock.yaml"):
		return pmPNPM
	default:
		return pmNPM
	}
}

func pythonEntrypoint(index map[string]string) string {
	for _, name := range []string{"app.py", "main.py", "server.py", "wsgi.py"} {
		if has(index, name) {
			return name
		}
	}
	return "app.py"
}

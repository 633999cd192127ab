package buildpack

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Dockerfile renders a Dockerfile for res. Callers skip it when res.HasDockerfile is set.
func Dockerfile(res Result) string {
	port := res.Port
	if port <= 0 {
		port = AppPort
	}
	var b strings.Builder
	b.WriteString("# syntax=docker/dockerfile:1\n")
	switch res.Framework {
	case FrameworkNode:
		writeNode(&b, res)
	case FrameworkPython:
		b.WriteString("FROM python:3.12-slim\n")
		b.WriteString("WORKDIR /app\n")
		b.WriteString("COPY requirements.txt ./\n")
		b.WriteString("RUN " + res.BuildCommand + "\n")
		b.WriteString("COPY . ./\n")
	case FrameworkGo:
		b.WriteString("FROM golang:1.24 AS builder\n")
		b.WriteString("WORKDIR /src\n")
		b.WriteString("COPY . ./\n")
		b.WriteString("RUN CGO_ENABLED=0 " + res.BuildCommand + "\n\n")
		b.WriteString("FROM debian:bookworm-slim\n")
		b.WriteString("WORKDIR /app\n")
		b.WriteString("COPY --from=builder /src/app ./app\n")
	default:
		b.WriteString("FROM node:20-alpine\n")
		b.WriteString("WORKDIR /app\n")
		b.WriteString("COPY . ./\n")
	}
	b.WriteString("ENV PORT=" + strconv.Itoa(port) + "\n")
	b.WriteString("EXPOSE " + strconv.Itoa(port) + "\n")
	b.WriteString("CMD " + execForm(res.StartCommand) + "\n")
	return b.String()
}

func writeNode(b *strings.Builder, res Result) {
	b.WriteString("FROM node:20-bullseye\n")
	b.WriteString("WORKDIR /app\n")
	switch packageManager(res.PackageManager) {
	case pmYarn:
		b.WriteString("COPY package.json yarn.lock* ./\n")
		b.WriteString("RUN corepack enable && yarn install\n")
	case pmPNPM:
		b.WriteString("COPY package.json pnpm-lock.yaml* ./\n")
		b.WriteString("RUN corepack enable && pnpm install\n")
	default:
		b.WriteString("COPY package*.json ./\n")
		b.WriteString("RUN if [ -f package-lock.json ]; then npm ci; else npm install; fi\n")
	}
	b.WriteString("COPY . ./\n")
	if res.BuildCommand != "" {
		b.WriteString("RUN " + res.BuildCommand + "\n")
	}
	b.WriteString("ENV NODE_ENV=production\n")
}

func execForm(command string) string {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		argv = []string{"true"}
	}
	data, _ := json.Marshal(argv)
	return string(data)
}

package model

// PathQuality is reported by the pathfinding collaborator alongside a path.
type PathQuality uint8

const (
	PathNormal PathQuality = iota
	// PathNoPath: no route, or only a partial one that stops short of the goal.
	PathNoPath
	// PathIncomplete: a route exists but exceeds the length cap.
	PathIncomplete
)

func (q PathQuality) String() string {
	switch q {
	case PathNoPath:
		return "no_path"
	case PathIncomplete:
		return "incomplete"
	}
	return "normal"
}

package workflow

// StatusLabel returns the citizen-facing label for a status
func StatusLabel(s State) string {
	switch s {
	case StateSubmitted:
		return "Diajukan"
	case StateRTRWReview:
		return "Review RT/RW"
	case StateRTRWApproved:
		return "Disetujui RT/RW"
	case StateRTRWRejected:
		return "Ditolak RT/RW"
	case StateVillageProcessing:
		return "Diproses Kelurahan"
	case StateVillageHeadReview:
		return "Review Kades"
	case StateCompleted:
		return "Selesai"
	case StateRejected:
		return "Ditolak"
	default:
		return string(s)
	}
}

// StatusProgress returns the tracker progress percentage for a status
func StatusProgress(s State) int {
	switch s {
	case StateSubmitted:
		return 10
	case StateRTRWReview, StateRTRWRejected:
		return 25
	case StateRTRWApproved:
		return 40
	case StateVillageProcessing:
		return 60
	case StateVillageHeadReview:
		return 80
	case StateCompleted:
		return 100
	default:
		return 0
	}
}

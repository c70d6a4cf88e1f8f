package textproc

// PadSequences brings every sequence to exactly maxLen.
// Short sequences are zero-padded at the end and long ones are cut at the end.
func PadSequences(seqs [][]int, maxLen int) [][]int {
	out := make([][]int, len(seqs))
	for i, seq := range seqs {
		row := make([]int, maxLen)
		n := len(seq)
		if n > maxLen {
			n = maxLen
		}
		copy(row, seq[:n])
		out[i] = row
	}
	return out
}

// JoinText is the single preprocessing policy shared by training and serving
func JoinText(title, content string) string {
	return title + " " + content
}

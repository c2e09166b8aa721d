// Command ixinspect prints a human-readable dump of a B+ tree index file:
// overall file size and page count, then a breadth-first walk of the tree
// from the root, one summary line per level.
//
// Usage: ixinspect <path-to-.idx>
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/daemondb/ixcore/index/bptree"
	"github.com/daemondb/ixcore/storage/bufferpool"
	"github.com/daemondb/ixcore/storage/diskmanager"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <index.idx>\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	disk, err := diskmanager.Open(path, log)
	if err != nil {
		fatal(err)
	}
	defer disk.Close()

	pool := bufferpool.New(64, disk, log)
	tree, err := bptree.Open(disk, pool, log)
	if err != nil {
		fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Index file: %s (%s, %s)\n", path, humanize.Bytes(uint64(info.Size())), humanize.Comma(int64(disk.TotalPages())))
	dumpTree(tree)
}

// dumpTree walks the tree breadth-first from the root, printing one summary
// line per level (node counts split internal/leaf, and their key counts),
// plus the running total of leaf entries and pages visited.
func dumpTree(tree *bptree.Tree) {
	root := tree.RootPageNo()
	if root == bptree.NoPage {
		fmt.Println("Tree is empty")
		return
	}

	fmt.Println("Level-by-level page walk:")
	level := 0
	totalEntries := 0
	totalPages := 0
	queue := []int64{root}
	for len(queue) > 0 {
		var next []int64
		internals, internalKeys := 0, 0
		leaves, leafKeys := 0, 0
		for _, pageNo := range queue {
			n, err := tree.FetchNode(pageNo)
			if err != nil {
				fatal(err)
			}
			if n.IsLeaf() {
				leaves++
				leafKeys += n.NumKeys()
			} else {
				internals++
				internalKeys += n.NumKeys()
				for i := 0; i < n.NumKeys(); i++ {
					next = append(next, n.ChildAt(i))
				}
			}
			tree.ReleaseNode(n)
		}
		fmt.Printf("  Level %d: %d internal node(s) (%d key(s)), %d leaf node(s) (%d key(s))\n",
			level, internals, internalKeys, leaves, leafKeys)
		totalEntries += leafKeys
		totalPages += internals + leaves
		queue = next
		level++
	}
	fmt.Printf("%s entries, %s page(s), %d level(s)\n",
		humanize.Comma(int64(totalEntries)), humanize.Comma(int64(totalPages)), level)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
